package app

import "strings"

const (
	// NoEnvSentinel runs the interactive picker without env file injection.
	NoEnvSentinel = "--"
	// EditSentinel runs the interactive picker and edits the choice first.
	EditSentinel = "*"
)

// Invocation is one run of dirshell as requested on the command line.
type Invocation struct {
	// Line is the command line to record. Empty means interactive mode.
	Line       string
	IgnoreEnv  bool
	Edit       bool
	ForceShell bool
	Copy       bool
	FromHook   bool
}

// ParseInvocation joins args with single spaces and recognizes the two
// whole-line sentinels.
func ParseInvocation(args []string) Invocation {
	merged := strings.Join(args, " ")
	inv := Invocation{Line: merged}
	switch merged {
	case NoEnvSentinel:
		inv.Line = ""
		inv.IgnoreEnv = true
	case EditSentinel:
		inv.Line = ""
		inv.Edit = true
	}
	// Whitespace-only input picks from history; recording it would store a blank entry.
	if strings.TrimSpace(inv.Line) == "" {
		inv.Line = ""
	}
	return inv
}

// Interactive reports whether the run picks from history instead of
// recording.
func (inv Invocation) Interactive() bool {
	return inv.Line == ""
}
