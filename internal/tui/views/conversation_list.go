package views

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ConversationList is the main chat list view. Rows keep the server order.
type ConversationList struct {
	*tview.Table
	theme *ui.Theme
	convs []chat.Conversation
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{Table: table, theme: theme}
}

// Update replaces the rows, keeping the selection on the same counterpart.
func (cl *ConversationList) Update(convs []chat.Conversation) {
	selected := cl.Selected()
	cl.convs = convs
	cl.render()
	for i, c := range convs {
		if c.CounterpartID == selected {
			cl.Select(i+1, 0)
			return
		}
	}
	if len(convs) > 0 {
		cl.Select(1, 0)
	}
}

// Selected returns the counterpart of the highlighted row, or 0.
func (cl *ConversationList) Selected() int {
	row, _ := cl.GetSelection()
	if row < 1 || row > len(cl.convs) {
		return 0
	}
	return cl.convs[row-1].CounterpartID
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	for i, c := range cl.convs {
		row := i + 1
		name := c.Name
		if name == "" {
			name = "User " + strconv.Itoa(c.CounterpartID)
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+display(name)).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+display(oneLine(c.LastMessage))).SetExpansion(2).SetMaxWidth(60))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTime(c.LastMessageTime)))

		unread := tview.NewTableCell("")
		if c.UnreadCount > 0 {
			unread.SetText(fmt.Sprintf(" %d", c.UnreadCount)).SetTextColor(cl.theme.UnreadColor)
		}
		cl.SetCell(row, 3, unread)
	}
}

// formatTime shows the clock for today and the date otherwise.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("02 Jan")
}
