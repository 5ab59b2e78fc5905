package views

import (
	"fmt"

	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// MessageThread displays the open conversation and its composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	me       int
	name     string
	onSend   func(text string)
	onInput  func(text string)
	quiet    bool
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetChangedFunc(func(text string) {
		if !mt.quiet && mt.onInput != nil {
			mt.onInput(text)
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			mt.onSend(composer.GetText())
		}
	})

	return mt
}

// SetOnSend sets the callback for Enter in the composer.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnInput sets the callback for every composer edit.
func (mt *MessageThread) SetOnInput(fn func(text string)) {
	mt.onInput = fn
}

// SetIdentity sets the signed-in user so own messages are marked.
func (mt *MessageThread) SetIdentity(userID int) {
	mt.me = userID
}

// SetName updates the title.
func (mt *MessageThread) SetName(name string) {
	mt.name = name
	mt.renderTitle(chat.Thread{})
}

// ClearInput empties the composer without reporting an edit.
func (mt *MessageThread) ClearInput() {
	mt.quiet = true
	mt.composer.SetText("")
	mt.quiet = false
}

// Update renders th. Messages are shown in arrival order.
func (mt *MessageThread) Update(th chat.Thread, sending bool) {
	mt.messages.Clear()
	mt.renderTitle(th)

	if th.Loading && len(th.Messages) == 0 {
		_, _ = fmt.Fprint(mt.messages, "[::d]Loading…[-:-:-]\n")
	}
	for _, m := range th.Messages {
		sender := mt.name
		color := mt.theme.PartnerColor
		if m.SenderID == mt.me {
			sender = "You"
			color = mt.theme.OwnMessageColor
		}
		line := fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s%s[-:-:-]\n%s\n\n",
			ui.ColorName(color), display(sender), formatTime(m.CreatedAt), deliveryMarker(m.State),
			display(m.Body))
		_, _ = fmt.Fprint(mt.messages, line)
	}

	label := " > "
	if sending {
		label = " … "
	}
	mt.composer.SetLabel(label)
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) renderTitle(th chat.Thread) {
	title := " " + display(mt.name) + " "
	switch {
	case th.ConnectionLost:
		title += "[::d](offline)[-:-:-] "
	case th.PartnerTyping:
		title += "[::d](typing…)[-:-:-] "
	}
	mt.messages.SetTitle(title)
}

func deliveryMarker(s chat.DeliveryState) string {
	switch s {
	case chat.Pending:
		return " ○"
	case chat.Failed:
		return " ✗ not sent"
	default:
		return " ✓"
	}
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
