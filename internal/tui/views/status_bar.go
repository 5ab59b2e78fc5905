package views

import (
	"fmt"
	"time"

	"github.com/Zain0205/travelin-chat/internal/api"
	"github.com/Zain0205/travelin-chat/internal/status"
	"github.com/Zain0205/travelin-chat/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the profile, connection state and key hints.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	status  api.StatusResponse
	hints   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetStatus updates the connection display.
func (sb *StatusBar) SetStatus(st api.StatusResponse) {
	sb.status = st
	sb.render()
}

// SetHints updates the key hints shown on the right.
func (sb *StatusBar) SetHints(hints string) {
	sb.hints = hints
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	color := sb.theme.StatusBadColor
	if sb.status.State == string(status.Connected) {
		color = sb.theme.StatusOKColor
	}
	state := sb.status.State
	if state == "" {
		state = "?"
	}
	if state == string(status.Failed) {
		state += " (r to retry)"
	}

	user := "not logged in"
	if sb.status.LoggedIn {
		user = fmt.Sprintf("user %d", sb.status.UserID)
	}

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %s | %s", sb.profile, ui.ColorName(color), state, user, clock)
	if sb.hints != "" {
		line += " | [::d]" + tview.Escape(sb.hints) + "[-:-:-]"
	}
	_, _ = fmt.Fprint(sb, line)
}
