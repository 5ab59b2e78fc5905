package ui

import (
	"fmt"

	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/rivo/tview"
)

// FlashBar displays the daemon's current notice. The daemon expires
// notices, so the bar only renders what it is given.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders n, or clears the bar when n is nil.
func (fb *FlashBar) Update(n *notice.Notice) {
	fb.Clear()
	if n == nil {
		return
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", fb.levelColor(n.Level), tview.Escape(n.Text))
}

func (fb *FlashBar) levelColor(l notice.Level) string {
	switch l {
	case notice.Warn:
		return ColorName(fb.theme.FlashWarnColor)
	case notice.Error:
		return ColorName(fb.theme.FlashErrColor)
	default:
		return ColorName(fb.theme.FlashInfoColor)
	}
}
