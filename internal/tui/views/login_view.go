package views

import (
	"github.com/Zain0205/travelin-chat/internal/tui/ui"
	"github.com/rivo/tview"
)

// LoginView asks for email and password when the profile has no session.
type LoginView struct {
	*tview.Form
	onSubmit func(email, password string)
}

// NewLoginView creates the login form.
func NewLoginView(theme *ui.Theme) *LoginView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetTitle(" Sign in ")
	form.SetTitleColor(theme.TitleColor)

	lv := &LoginView{Form: form}
	form.AddInputField("Email", "", 40, nil, nil)
	form.AddPasswordField("Password", "", 40, '*', nil)
	form.AddButton("Login", func() {
		if lv.onSubmit == nil {
			return
		}
		email := form.GetFormItemByLabel("Email").(*tview.InputField).GetText()
		password := form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
		lv.onSubmit(email, password)
	})
	return lv
}

// SetOnSubmit sets the callback of the Login button.
func (lv *LoginView) SetOnSubmit(fn func(email, password string)) {
	lv.onSubmit = fn
}

// Reset clears the password and focuses the first field.
func (lv *LoginView) Reset() {
	lv.GetFormItemByLabel("Password").(*tview.InputField).SetText("")
	lv.SetFocus(0)
}
