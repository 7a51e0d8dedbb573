package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tanderapp/tander/internal/store"
	"github.com/tanderapp/tander/internal/tui/ui"
)

// SearchView queries the local message cache and lists the hits.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []store.SearchResult
	names   map[int64]string
}

// NewSearchView creates the search screen.
func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			sv.onQuery(sv.input.GetText())
		}
	})

	return sv
}

// Name implements Component.
func (sv *SearchView) Name() string { return "Search" }

// Hints implements Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Search / Open hit"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// SetQuery pre-fills the input, for the ":search <words>" command.
func (sv *SearchView) SetQuery(q string) {
	sv.input.SetText(q)
}

// Update refreshes search results. names maps conversation ids to peer
// names for the WHO column.
func (sv *SearchView) Update(results []store.SearchResult, names map[int64]string) {
	sv.data = results
	sv.names = names
	sv.results.Clear()

	headers := []string{" WHO", " MATCH", " WHEN"}
	for col, h := range headers {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	for i, r := range results {
		row := i + 1
		who := sv.names[r.Message.ConversationID]
		if who == "" {
			who = fmt.Sprintf("chat %d", r.Message.ConversationID)
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(who))).
			SetMaxWidth(25).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+sv.highlight(r.Snippet)).
			SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(r.Message.Timestamp)).
			SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}

	sv.results.SetTitle(fmt.Sprintf(" %d results ", len(results)))
}

// highlight converts FTS snippet markers into color tags. Escaping runs
// first so user text cannot inject markup.
func (sv *SearchView) highlight(snippet string) string {
	esc := tview.Escape(sanitizeForTerminal(snippet))
	esc = strings.ReplaceAll(esc, "<<", "["+colorName(sv.theme.MatchColor)+"::b]")
	esc = strings.ReplaceAll(esc, ">>", "[-:-:-]")
	return esc
}

// Selected returns the search hit under the cursor.
func (sv *SearchView) Selected() (store.SearchResult, bool) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.data) {
		return sv.data[idx], true
	}
	return store.SearchResult{}, false
}

// Input returns the search input field (for focus management).
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table (for focus management).
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
