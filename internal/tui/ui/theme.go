package ui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color

	OnlineColor   tcell.Color
	TypingColor   tcell.Color
	ReadTickColor tcell.Color
	FailedColor   tcell.Color
	MatchColor    tcell.Color
}

// DefaultTheme returns the TANDER dark theme. Warm accents, high
// contrast; the audience reads terminals at large font sizes.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorLinen,
		BorderColor:       tcell.ColorPaleVioletRed,
		BorderFocusColor:  tcell.ColorHotPink,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorLightCoral,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorHotPink,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorPaleVioletRed,
		MenuKeyColor:      tcell.ColorHotPink,
		NumericKeyColor:   tcell.ColorGold,
		TitleColor:        tcell.ColorLightCoral,
		CounterColor:      tcell.ColorPapayaWhip,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorHotPink,

		OnlineColor:   tcell.ColorMediumSpringGreen,
		TypingColor:   tcell.ColorKhaki,
		ReadTickColor: tcell.ColorDeepSkyBlue,
		FailedColor:   tcell.ColorOrangeRed,
		MatchColor:    tcell.ColorHotPink,
	}
}
