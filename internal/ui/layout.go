package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which compact mode is used.
	LayoutCompactWidth = 100

	// LayoutExtraWideWidth is the threshold for extra-wide layouts.
	LayoutExtraWideWidth = 160
)

// Chrome rows: header, command bar and snackbar.
const chromeRows = 3

// Activity pane limits.
const (
	// ActivityTailLines is how many log lines the activity pane reads.
	ActivityTailLines = 500
)

// Timing constants.
const (
	// DefaultUIInterval is the default UI refresh interval. It also drives
	// the undo countdown in the snackbar.
	DefaultUIInterval = 250 * time.Millisecond

	// FailureDisplay is how long an absorbed failure stays in the snackbar.
	FailureDisplay = 6 * time.Second

	// TokenWarnBefore starts the header warning before the token expires.
	TokenWarnBefore = 24 * time.Hour
)
