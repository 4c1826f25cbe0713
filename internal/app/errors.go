package app

import (
	"errors"

	"github.com/bogvak/dirshell/internal/launcher"
)

// Kind classifies a failed run. Each kind maps to its own exit code.
type Kind int

const (
	KindInfrastructure Kind = iota + 1
	KindUsage
	KindHistoryIO
	KindEnvIO
	KindSpawn
	KindWait
)

func (k Kind) String() string {
	switch k {
	case KindInfrastructure:
		return "infrastructure"
	case KindUsage:
		return "usage"
	case KindHistoryIO:
		return "history"
	case KindEnvIO:
		return "env"
	case KindSpawn:
		return "spawn"
	case KindWait:
		return "wait"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewError classifies a failure that happened outside App.Run.
func NewError(kind Kind, op string, err error) error {
	return newError(kind, op, err)
}

// UsageError marks err as caused by bad command-line input.
func UsageError(err error) error {
	return newError(KindUsage, "", err)
}

// ExitCode maps the result of a run to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case KindUsage:
			return 2
		case KindHistoryIO:
			return 3
		case KindEnvIO:
			return 4
		case KindSpawn:
			return 5
		case KindWait:
			return 6
		default:
			return 1
		}
	}
	var spawnErr *launcher.SpawnError
	if errors.As(err, &spawnErr) {
		return 5
	}
	var waitErr *launcher.WaitError
	if errors.As(err, &waitErr) {
		return 6
	}
	return 1
}
