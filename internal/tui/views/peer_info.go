package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/tui/ui"
)

// PeerInfo shows the profile behind the open conversation.
type PeerInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewPeerInfo creates the peer profile panel.
func NewPeerInfo(theme *ui.Theme) *PeerInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Profile ")
	tv.SetTitleColor(theme.TitleColor)

	return &PeerInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (pi *PeerInfo) Name() string { return "Profile" }

// Hints implements Component.
func (pi *PeerInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders the peer's profile details.
func (pi *PeerInfo) Update(peer model.User, online bool, lastActive int64) {
	pi.Clear()

	fg := colorName(pi.theme.FgColor)
	ct := colorName(pi.theme.CounterColor)

	presence := activeAgo(lastActive, time.Now())
	if online {
		presence = fmt.Sprintf("[%s]● online now[-]", colorName(pi.theme.OnlineColor))
	}
	if presence == "" {
		presence = "-"
	}

	city := peer.City
	if city == "" {
		city = "-"
	}
	photo := peer.PhotoURL
	if photo == "" {
		photo = "-"
	}

	text := fmt.Sprintf(
		"\n [%s::b]Name:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Age:[-:-:-]       [%s]%d[-]\n"+
			" [%s::b]City:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Presence:[-:-:-]  %s\n"+
			" [%s::b]Photo:[-:-:-]     [%s]%s[-]",
		fg, ct, tview.Escape(sanitizeForTerminal(peer.Name)),
		fg, ct, peer.Age,
		fg, ct, tview.Escape(city),
		fg, presence,
		fg, ct, tview.Escape(photo),
	)

	_, _ = fmt.Fprint(pi, text)
	pi.SetTitle(fmt.Sprintf(" %s ", peer.Name))
}
