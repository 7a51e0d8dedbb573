package views

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/hako/durafmt"

	"github.com/tanderapp/tander/internal/model"
)

// colorName returns a tview-compatible color tag for c.
func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}

// shortUnits renders durations compactly: "5m", "2h", "3d".
var shortUnits, _ = durafmt.UnitsCoder{PluralSep: ":", UnitsSep: ","}.
	Decode("y:y,w:w,d:d,h:h,m:m,s:s,ms:ms,us:us")

// formatTimestamp renders epoch milliseconds as clock time for today
// and a short date otherwise.
func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// activeAgo renders a last-active timestamp as "active 5m ago". Empty
// when the timestamp is unknown.
func activeAgo(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	d := now.Sub(time.UnixMilli(ms)).Truncate(time.Minute)
	if d < time.Minute {
		return "active just now"
	}
	return "active " + durafmt.ParseShort(d).Format(shortUnits) + " ago"
}

// statusGlyph renders the delivery state of an outgoing message. The
// caller colors the read double-check and the failure cross.
func statusGlyph(s model.Status) string {
	switch s {
	case model.StatusSending:
		return "…"
	case model.StatusSent:
		return "✓"
	case model.StatusDelivered:
		return "✓✓"
	case model.StatusRead:
		return "✓✓"
	case model.StatusFailed:
		return "✗"
	default:
		return ""
	}
}

// callLine renders a call-event entry inline, e.g. "Video call, 12m34s"
// or "Missed voice call".
func callLine(c *model.CallInfo) string {
	if c == nil {
		return "Call"
	}
	lower, title := "voice call", "Voice call"
	if c.Kind == model.CallVideo {
		lower, title = "video call", "Video call"
	}
	switch c.Outcome {
	case model.CallMissed:
		return "Missed " + lower
	case model.CallDeclined:
		return "Declined " + lower
	default:
		if c.DurationSec > 0 {
			d := time.Duration(c.DurationSec) * time.Second
			return fmt.Sprintf("%s, %s", title, d.String())
		}
		return title
	}
}

// sanitizeForTerminal removes Unicode codepoints that break tcell cell
// accounting: skin tone modifiers, zero width joiners and variation
// selectors collapse multi-codepoint emoji into their renderable base.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
