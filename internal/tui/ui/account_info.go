package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rivo/tview"
)

// AccountData holds the signed-in account summary for the header panel.
type AccountData struct {
	Account string
	Name    string
	Status  string
	Chats   int
	Unread  int
	// LikesLeft is the remaining daily swipe budget, -1 while unknown.
	LikesLeft int
	Uptime    time.Duration
}

// AccountInfo displays account metadata in the header.
type AccountInfo struct {
	*tview.TextView
	theme *Theme
}

// NewAccountInfo creates a new account info panel.
func NewAccountInfo(theme *Theme) *AccountInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &AccountInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the account info.
func (ai *AccountInfo) Update(data *AccountData) {
	ai.Clear()
	if data == nil {
		return
	}

	fgColor := colorName(ai.theme.FgColor)
	counterColor := colorName(ai.theme.CounterColor)

	name := data.Name
	if name == "" {
		name = "-"
	}

	likes := "-"
	if data.LikesLeft >= 0 {
		likes = strconv.Itoa(data.LikesLeft)
	}

	uptime := formatDuration(data.Uptime)

	text := fmt.Sprintf(
		"[%s::b]Account:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Name:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]   [%s]%d (%d unread)[-]\n"+
			"[%s::b]Likes:[-:-:-]   [%s]%s left today[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fgColor, counterColor, data.Account,
		fgColor, counterColor, name,
		fgColor, counterColor, data.Status,
		fgColor, counterColor, data.Chats, data.Unread,
		fgColor, counterColor, likes,
		fgColor, counterColor, uptime,
	)

	_, _ = fmt.Fprint(ai, text)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
