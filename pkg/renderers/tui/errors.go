package tui

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("tui: aborted")
	// ErrNoModels is returned when there is nothing to choose from.
	ErrNoModels = errors.New("tui: no models available")
)
