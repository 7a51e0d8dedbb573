package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/tanderapp/tander/internal/tui/ui"
)

// HelpView displays the key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates the help screen.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := colorName(hv.theme.MenuKeyColor)

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  [%s]d[-:-:-]    Discover people     [%s]Esc[-:-:-]   Go back
  [%s]s[-:-:-]    Search messages     [%s]?[-:-:-]     Help
  [%s]:[-:-:-]    Command mode        [%s]q[-:-:-]     Back / Quit
  [%s]/[-:-:-]    Filter chats        [%s]Ctrl-C[-:-:-] Quit immediately

  [::b]Chats[-:-:-]

  [%s]Enter[-:-:-]  Open conversation  [%s]0[-:-:-]     Show all (clear filter)
  [%s]1-9[-:-:-]    Jump to Nth chat   [%s]j/k[-:-:-]  Move down / up

  [::b]Conversation[-:-:-]

  [%s]i[-:-:-]    Focus composer      [%s]Enter[-:-:-] Send (in composer)
  [%s]Esc[-:-:-]  Leave composer      [%s]r[-:-:-]     Resend a failed message
  [%s]PgUp[-:-:-] Earlier messages    [%s]p[-:-:-]     Peer profile

  [::b]Discover[-:-:-]

  [%s]l[-:-:-]    Like                [%s]x[-:-:-]     Pass
  [%s]u[-:-:-]    Undo last swipe     [%s]R[-:-:-]     Reload

  [::b]Commands (: mode)[-:-:-]

  [%s]:search <words>[-:-:-]    Search messages
  [%s]:chat <name>[-:-:-]       Open chat by name
  [%s]:discover[-:-:-]          Go to discover
  [%s]:logout[-:-:-]            Sign out of this account
  [%s]:help[-:-:-] / [%s]:h[-:-:-]       Show this help
  [%s]:quit[-:-:-] / [%s]:q[-:-:-]       Quit
`,
		kc, kc, kc, kc, kc, kc, kc, kc,
		kc, kc, kc, kc,
		kc, kc, kc, kc, kc, kc,
		kc, kc, kc, kc,
		kc, kc, kc, kc, kc, kc, kc, kc,
	)

	_, _ = fmt.Fprint(hv, help)
}
