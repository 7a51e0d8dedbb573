package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/tanderapp/tander/internal/discovery"
	"github.com/tanderapp/tander/internal/tui/ui"
)

// DiscoverView renders one discovery card at a time plus deck counters.
type DiscoverView struct {
	*tview.Flex
	theme  *ui.Theme
	card   *tview.TextView
	footer *tview.TextView
}

// NewDiscoverView creates the discover screen.
func NewDiscoverView(theme *ui.Theme) *DiscoverView {
	card := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	card.SetBorder(true)
	card.SetBorderColor(theme.BorderFocusColor)
	card.SetBackgroundColor(theme.BgColor)
	card.SetTextColor(theme.FgColor)
	card.SetTitle(" Discover ")
	card.SetTitleColor(theme.TitleColor)

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	footer.SetBackgroundColor(theme.BgColor)

	// Keep the card at reading width in wide terminals.
	column := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(card, 0, 1, true).
		AddItem(footer, 2, 0, false)
	flex := tview.NewFlex().
		AddItem(tview.NewBox().SetBackgroundColor(theme.BgColor), 0, 1, false).
		AddItem(column, 64, 0, true).
		AddItem(tview.NewBox().SetBackgroundColor(theme.BgColor), 0, 1, false)

	return &DiscoverView{
		Flex:   flex,
		theme:  theme,
		card:   card,
		footer: footer,
	}
}

// Name implements Component.
func (dv *DiscoverView) Name() string { return "Discover" }

// Hints implements Component.
func (dv *DiscoverView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "l", Description: "Like"},
		{Key: "x", Description: "Pass"},
		{Key: "u", Description: "Undo"},
		{Key: "R", Description: "Reload"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders a deck snapshot.
func (dv *DiscoverView) Update(snap discovery.Snapshot) {
	dv.renderCard(snap)
	dv.renderFooter(snap)
}

func (dv *DiscoverView) renderCard(snap discovery.Snapshot) {
	dv.card.Clear()

	switch {
	case !snap.Loaded && snap.InitialErr != "":
		_, _ = fmt.Fprintf(dv.card, "\n  [%s]%s[-]\n\n  Press R to try again.",
			colorName(dv.theme.FlashErrColor), tview.Escape(snap.InitialErr))
		return
	case !snap.Loaded:
		_, _ = fmt.Fprint(dv.card, "\n  [gray]Finding people near you…[-]")
		return
	case snap.Current == nil && snap.Exhausted:
		_, _ = fmt.Fprint(dv.card, "\n  You've met everyone for now.\n\n  [gray]Check back later for new people.[-]")
		return
	case snap.Current == nil:
		_, _ = fmt.Fprint(dv.card, "\n  [gray]Finding more people…[-]")
		return
	}

	p := snap.Current
	title := colorName(dv.theme.TitleColor)
	counter := colorName(dv.theme.CounterColor)

	_, _ = fmt.Fprintf(dv.card, "\n  [%s::b]%s, %d[-:-:-]\n", title, tview.Escape(sanitizeForTerminal(p.Name)), p.Age)
	if p.City != "" {
		_, _ = fmt.Fprintf(dv.card, "  [%s]%s[-]\n", counter, tview.Escape(p.City))
	}
	if p.PhotoURL != "" {
		_, _ = fmt.Fprintf(dv.card, "  [gray::d]photo: %s[-:-:-]\n", tview.Escape(p.PhotoURL))
	}
	if p.Bio != "" {
		_, _ = fmt.Fprintf(dv.card, "\n  %s\n", tview.Escape(sanitizeForTerminal(p.Bio)))
	}
	if len(p.Interests) > 0 {
		_, _ = fmt.Fprintf(dv.card, "\n  [%s]Enjoys:[-] %s\n", counter, tview.Escape(strings.Join(p.Interests, ", ")))
	}
	_, _ = fmt.Fprintf(dv.card, "\n  [%s]l[-] like   [%s]x[-] pass   [%s]u[-] undo",
		colorName(dv.theme.MenuKeyColor), colorName(dv.theme.MenuKeyColor), colorName(dv.theme.MenuKeyColor))
}

func (dv *DiscoverView) renderFooter(snap discovery.Snapshot) {
	dv.footer.Clear()

	var parts []string
	if snap.Current != nil {
		parts = append(parts, fmt.Sprintf("Card %d of %d", snap.Position+1, snap.Total))
	}
	if snap.SwipesRemaining >= 0 {
		parts = append(parts, fmt.Sprintf("%d likes left today", snap.SwipesRemaining))
	}
	if snap.Fetching {
		parts = append(parts, "finding more people…")
	}
	if len(parts) > 0 {
		_, _ = fmt.Fprintf(dv.footer, "[%s]%s[-]", colorName(dv.theme.CounterColor), strings.Join(parts, "  ·  "))
	}
	if snap.Notice != "" {
		_, _ = fmt.Fprintf(dv.footer, "\n[%s]%s[-]", colorName(dv.theme.FlashWarnColor), tview.Escape(snap.Notice))
	}
}
