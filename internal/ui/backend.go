package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	BackendAuto      = "auto"
	BackendBubbleTea = "bubbletea"
	BackendHuh       = "huh"
	BackendTView     = "tview"
	BackendPlain     = "plain"
)

var isTerminal = func(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func NormalizeBackend(backend string) string {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendAuto, "":
		return BackendAuto
	case BackendBubbleTea:
		return BackendBubbleTea
	case BackendHuh:
		return BackendHuh
	case BackendTView:
		return BackendTView
	case BackendPlain:
		return BackendPlain
	default:
		return BackendAuto
	}
}

// IsInteractiveBackend reports whether backend draws a terminal UI.
func IsInteractiveBackend(backend string) bool {
	switch NormalizeBackend(backend) {
	case BackendPlain:
		return false
	default:
		return true
	}
}

// ResolveBackend downgrades to the plain backend when either standard
// stream is not a terminal; full-screen pickers cannot run there.
func ResolveBackend(backend string) string {
	normalized := NormalizeBackend(backend)
	if normalized == BackendPlain {
		return normalized
	}
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return BackendPlain
	}
	return normalized
}

func backendCandidates(backend string) []string {
	switch NormalizeBackend(backend) {
	case BackendBubbleTea:
		return []string{BackendBubbleTea, BackendHuh, BackendTView}
	case BackendHuh:
		return []string{BackendHuh, BackendBubbleTea, BackendTView}
	case BackendTView:
		return []string{BackendTView, BackendBubbleTea, BackendHuh}
	case BackendPlain:
		return []string{BackendPlain}
	case BackendAuto, "":
		return []string{BackendBubbleTea, BackendHuh, BackendTView}
	default:
		return []string{BackendBubbleTea, BackendHuh, BackendTView}
	}
}
