package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/tanderapp/tander/internal/status"
	"github.com/tanderapp/tander/internal/tui/ui"
)

// StatusBar displays the account, connection state and clock.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	account string
	state   status.State
	online  int
}

// NewStatusBar creates the status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetAccount updates the account name display.
func (sb *StatusBar) SetAccount(name string) {
	sb.account = name
	sb.Refresh()
}

// SetState updates the session state display.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.Refresh()
}

// SetOnlineCount updates the "N online" counter.
func (sb *StatusBar) SetOnlineCount(n int) {
	sb.online = n
	sb.Refresh()
}

// Refresh re-renders the bar, picking up the wall clock.
func (sb *StatusBar) Refresh() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", sb.account, sb.stateLabel(), clock)
	if sb.online > 0 {
		line += fmt.Sprintf(" | [%s]%d online[-]", colorName(sb.theme.OnlineColor), sb.online)
	}
	_, _ = fmt.Fprint(sb, line)
}

// stateLabel maps the session machine state to the label seniors see.
func (sb *StatusBar) stateLabel() string {
	switch sb.state {
	case status.Online:
		return fmt.Sprintf("[%s]online[-]", colorName(sb.theme.OnlineColor))
	case status.Syncing:
		return fmt.Sprintf("[%s]syncing[-]", colorName(sb.theme.TypingColor))
	case status.Connecting:
		return "connecting"
	case status.Reconnecting:
		return fmt.Sprintf("[%s]reconnecting[-]", colorName(sb.theme.FlashWarnColor))
	case status.Degraded:
		return fmt.Sprintf("[%s]connection trouble, retrying[-]", colorName(sb.theme.FlashWarnColor))
	case status.AuthRequired:
		return "signed out"
	case status.Error:
		return fmt.Sprintf("[%s]error[-]", colorName(sb.theme.FlashErrColor))
	default:
		return "starting"
	}
}
