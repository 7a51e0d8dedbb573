// Package views holds the screens the TANDER terminal client is
// assembled from. Every screen implements ui.Component and renders
// plain controller snapshots; none of them talk to the network.
package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/tanderapp/tander/internal/tui/ui"
)

// LoginView is the credentials form shown while no session is active.
type LoginView struct {
	*tview.Flex
	theme   *ui.Theme
	form    *tview.Form
	message *tview.TextView
	onLogin func(phone, password string)
}

// NewLoginView creates the login form.
func NewLoginView(theme *ui.Theme) *LoginView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetTitle(" Welcome to TANDER ")
	form.SetTitleColor(theme.TitleColor)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetLabelColor(theme.FgColor)
	form.SetFieldBackgroundColor(theme.TableHeaderBg)
	form.SetFieldTextColor(theme.FgColor)
	form.SetButtonBackgroundColor(theme.BorderFocusColor)
	form.SetButtonTextColor(theme.CrumbActiveFg)
	form.SetButtonsAlign(tview.AlignCenter)

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)

	lv := &LoginView{
		theme:   theme,
		form:    form,
		message: message,
	}

	form.AddInputField("Phone number", "", 24, nil, nil)
	form.AddPasswordField("Password", "", 24, '*', nil)
	form.AddButton("Sign in", lv.submit)

	// Center the form on an otherwise empty screen.
	column := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(theme.BgColor), 0, 1, false).
		AddItem(form, 9, 0, true).
		AddItem(message, 2, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(theme.BgColor), 0, 2, false)
	lv.Flex = tview.NewFlex().
		AddItem(tview.NewBox().SetBackgroundColor(theme.BgColor), 0, 1, false).
		AddItem(column, 52, 0, true).
		AddItem(tview.NewBox().SetBackgroundColor(theme.BgColor), 0, 1, false)

	return lv
}

// Name implements Component.
func (lv *LoginView) Name() string { return "Sign in" }

// Hints implements Component.
func (lv *LoginView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Sign in"},
		{Key: "Ctrl-C", Description: "Quit"},
	}
}

// SetOnLogin sets the callback for a submitted credential pair.
func (lv *LoginView) SetOnLogin(fn func(phone, password string)) {
	lv.onLogin = fn
}

func (lv *LoginView) submit() {
	phone := lv.form.GetFormItem(0).(*tview.InputField).GetText()
	password := lv.form.GetFormItem(1).(*tview.InputField).GetText()
	if phone == "" || password == "" {
		lv.ShowError("Enter your phone number and password.")
		return
	}
	if lv.onLogin != nil {
		lv.onLogin(phone, password)
	}
}

// ShowMessage displays a neutral status line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "[%s]%s[-]", colorName(lv.theme.CounterColor), tview.Escape(msg))
}

// ShowError displays a highlighted error line under the form.
func (lv *LoginView) ShowError(msg string) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "[%s]%s[-]", colorName(lv.theme.FlashErrColor), tview.Escape(msg))
}

// Reset clears both fields and the message line, for a fresh sign-in
// after logout or session expiry.
func (lv *LoginView) Reset() {
	lv.form.GetFormItem(0).(*tview.InputField).SetText("")
	lv.form.GetFormItem(1).(*tview.InputField).SetText("")
	lv.form.SetFocus(0)
	lv.message.Clear()
}

// ClearPassword blanks the password field after a rejected attempt.
func (lv *LoginView) ClearPassword() {
	lv.form.GetFormItem(1).(*tview.InputField).SetText("")
}
