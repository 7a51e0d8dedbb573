package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/tui/ui"
)

// InboxView is the conversation list: one row per match the account is
// talking to, newest activity first.
type InboxView struct {
	*tview.Table
	theme  *ui.Theme
	convs  []model.Conversation
	typing map[int64]bool
	online func(userID int64) bool
	filter string
	notice string
}

// NewInboxView creates the conversation list table.
func NewInboxView(theme *ui.Theme) *InboxView {
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
	table.SetTitle(" Chats ")
	table.SetTitleColor(theme.TitleColor)

	return &InboxView{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (iv *InboxView) Name() string { return "Chats" }

// Hints implements Component.
func (iv *InboxView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open chat"},
		{Key: "d", Description: "Discover"},
		{Key: "s", Description: "Search"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// SetPresence installs the online probe used for the presence dot.
func (iv *InboxView) SetPresence(fn func(userID int64) bool) {
	iv.online = fn
}

// SetNotice shows a short state note in the title, e.g. while the first
// load is still failing.
func (iv *InboxView) SetNotice(msg string) {
	if iv.notice == msg {
		return
	}
	iv.notice = msg
	iv.render()
}

// Update refreshes the list with a new snapshot.
func (iv *InboxView) Update(convs []model.Conversation, typing map[int64]bool) {
	iv.convs = convs
	iv.typing = typing
	iv.render()
}

// SetFilter sets the active filter text and re-renders.
func (iv *InboxView) SetFilter(filter string) {
	iv.filter = filter
	iv.render()
}

// ClearFilter clears the active filter.
func (iv *InboxView) ClearFilter() {
	iv.filter = ""
	iv.render()
}

func (iv *InboxView) render() {
	iv.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{"  WHO", 1},
		{" LAST MESSAGE", 2},
		{" WHEN", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(iv.theme.TableHeaderFg).
			SetBackgroundColor(iv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		iv.SetCell(0, col, cell)
	}

	row := 1
	for _, conv := range iv.convs {
		if !iv.matchesFilter(conv) {
			continue
		}

		name := conv.Peer.Name
		if conv.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", conv.UnreadCount, name)
		}

		dot := "[gray]○[-]"
		if iv.online != nil && iv.online(conv.Peer.ID) {
			dot = fmt.Sprintf("[%s]●[-]", colorName(iv.theme.OnlineColor))
		}

		preview := tview.Escape(sanitizeForTerminal(conv.LastMessage))
		if iv.typing[conv.ID] {
			preview = fmt.Sprintf("[%s::d]typing…[-:-:-]", colorName(iv.theme.TypingColor))
		}

		who := fmt.Sprintf(" %s %s", dot, tview.Escape(sanitizeForTerminal(name)))
		iv.SetCell(row, 0, tview.NewTableCell(who).SetExpansion(1).SetTextColor(iv.theme.FgColor))
		iv.SetCell(row, 1, tview.NewTableCell(" "+preview).SetExpansion(2).SetTextColor(iv.theme.FgColor))
		iv.SetCell(row, 2, tview.NewTableCell(formatTimestamp(conv.LastMessageAt)).
			SetExpansion(0).SetTextColor(iv.theme.FgColor).SetAlign(tview.AlignRight))
		row++
	}

	switch {
	case iv.notice != "":
		iv.SetTitle(fmt.Sprintf(" Chats (%s) ", iv.notice))
	case iv.filter != "":
		iv.SetTitle(fmt.Sprintf(" Chats (%d/%d) filter: %s ", row-1, len(iv.convs), iv.filter))
	default:
		iv.SetTitle(fmt.Sprintf(" Chats (%d) ", len(iv.convs)))
	}
}

func (iv *InboxView) matchesFilter(conv model.Conversation) bool {
	if iv.filter == "" {
		return true
	}
	needle := strings.ToLower(iv.filter)
	return strings.Contains(strings.ToLower(conv.Peer.Name), needle) ||
		strings.Contains(strings.ToLower(conv.LastMessage), needle)
}

// Selected returns the conversation under the cursor.
func (iv *InboxView) Selected() (model.Conversation, bool) {
	row, _ := iv.GetSelection()
	return iv.visibleAt(row - 1) // account for header
}

// ByIndex returns the Nth visible conversation (1-based), for the
// number-key jump.
func (iv *InboxView) ByIndex(n int) (model.Conversation, bool) {
	return iv.visibleAt(n - 1)
}

func (iv *InboxView) visibleAt(idx int) (model.Conversation, bool) {
	if idx < 0 {
		return model.Conversation{}, false
	}
	visible := 0
	for _, conv := range iv.convs {
		if !iv.matchesFilter(conv) {
			continue
		}
		if visible == idx {
			return conv, true
		}
		visible++
	}
	return model.Conversation{}, false
}
