// Package launcher turns a remembered command line into a child process.
//
// A line is split on whitespace and started directly. When the program
// cannot be started, or its first token is one of the configured exception
// commands, the line is handed to the platform shell instead.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/bogvak/dirshell/internal/safety"
	"go.uber.org/zap"
	"mvdan.cc/sh/v3/expand"
)

var (
	goos        = runtime.GOOS
	lookPath    = exec.LookPath
	baseEnviron = os.Environ
)

// ErrEmptyCommand is returned when a line holds no tokens.
var ErrEmptyCommand = errors.New("command line is empty")

// Invocation is a program plus its argument vector.
type Invocation struct {
	Program string
	Args    []string
	Shell   bool
}

func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Program}, inv.Args...), " ")
}

// Result is the outcome of a finished child.
type Result struct {
	ExitCode int
}

// SpawnError is returned when the program could not be started.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("could not start %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// WaitError is returned when a started child could not be waited for.
// A child that ran and exited non-zero is not a WaitError.
type WaitError struct {
	Program string
	Err     error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("could not wait for %s: %v", e.Program, e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// Tokenize splits line on whitespace runs. The result is shell-wrapped when
// forceShell is set or the first token is an exception command.
func Tokenize(line string, forceShell bool, exceptions []string, shell string) (Invocation, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Invocation{}, ErrEmptyCommand
	}
	if forceShell || slices.Contains(exceptions, tokens[0]) {
		return wrapInShell(tokens, shell), nil
	}
	return Invocation{Program: tokens[0], Args: tokens[1:]}, nil
}

// wrapInShell builds the shell invocation for tokens. Windows gets each token
// as its own argument after /C; elsewhere the joined line is passed to -c.
func wrapInShell(tokens []string, shell string) Invocation {
	if goos == "windows" {
		comspec := strings.TrimSpace(shell)
		if comspec == "" {
			comspec = strings.TrimSpace(os.Getenv("COMSPEC"))
		}
		if comspec == "" {
			comspec = "cmd"
		}
		return Invocation{Program: comspec, Args: append([]string{"/C"}, tokens...), Shell: true}
	}
	return Invocation{Program: ResolveShell(shell), Args: []string{"-c", strings.Join(tokens, " ")}, Shell: true}
}

// ResolveShell picks the interpreter used for shell-wrapped lines on
// unix-like systems: the configured one, then $SHELL, then sh.
func ResolveShell(configured string) string {
	for _, candidate := range []string{configured, os.Getenv("SHELL")} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if filepath.IsAbs(candidate) {
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			continue
		}
		if resolved, err := lookPath(candidate); err == nil {
			return resolved
		}
	}
	return "sh"
}

// Launcher starts command lines with inherited standard streams.
type Launcher struct {
	Exceptions []string
	Shell      string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Out receives launcher diagnostics such as spawn failures.
	Out    io.Writer
	Logger *zap.Logger
}

// New returns a launcher bound to the process standard streams.
func New(exceptions []string, shell string, logger *zap.Logger) *Launcher {
	return &Launcher{
		Exceptions: exceptions,
		Shell:      shell,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Out:        os.Stdout,
		Logger:     logger,
	}
}

// Process is a started child.
type Process struct {
	inv Invocation
	cmd *exec.Cmd
}

func (l *Launcher) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *Launcher) out() io.Writer {
	if l.Out == nil {
		return io.Discard
	}
	return l.Out
}

// Spawn starts inv in dir with env layered over the inherited environment.
func (l *Launcher) Spawn(ctx context.Context, dir string, inv Invocation, env map[string]string) (*Process, error) {
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = dir
	cmd.Env = mergeEnviron(baseEnviron(), env)
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(l.out(), "Failed to run command: %s\n", inv.Program)
		fmt.Fprintf(l.out(), "Reason: %v\n", err)
		l.logger().Warn("spawn failed",
			zap.String("program", inv.Program),
			zap.Bool("shell", inv.Shell),
			zap.Error(err))
		return nil, &SpawnError{Program: inv.Program, Err: err}
	}
	l.logger().Debug("spawned child",
		zap.String("command", safety.RedactText(inv.String())),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("env_overrides", len(env)))
	return &Process{inv: inv, cmd: cmd}, nil
}

// Wait blocks until the child exits. A non-zero exit status is reported in
// the result, not as an error.
func (p *Process) Wait() (Result, error) {
	err := p.cmd.Wait()
	if err == nil {
		return Result{ExitCode: 0}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{}, &WaitError{Program: p.inv.Program, Err: err}
}

// Run starts line directly, retries once through the shell when that fails,
// and waits for the child.
func (l *Launcher) Run(ctx context.Context, dir string, line string, env map[string]string, forceShell bool) (Result, error) {
	inv, err := Tokenize(line, forceShell, l.Exceptions, l.Shell)
	if err != nil {
		return Result{}, err
	}

	proc, err := l.Spawn(ctx, dir, inv, env)
	if err != nil {
		if inv.Shell {
			return Result{}, err
		}
		retry := wrapInShell(strings.Fields(line), l.Shell)
		fmt.Fprintf(l.out(), "Retrying with shell: %s\n", retry)
		proc, err = l.Spawn(ctx, dir, retry, env)
		if err != nil {
			return Result{}, err
		}
	}

	result, err := proc.Wait()
	if err != nil {
		return Result{}, err
	}
	l.logger().Info("command finished",
		zap.String("program", proc.inv.Program),
		zap.Bool("shell", proc.inv.Shell),
		zap.Int("exit_code", result.ExitCode))
	return result, nil
}

// mergeEnviron layers overrides on top of base. Overrides win on conflicts.
func mergeEnviron(base []string, overrides map[string]string) []string {
	pairs := make([]string, 0, len(base)+len(overrides))
	pairs = append(pairs, base...)
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		pairs = append(pairs, key+"="+overrides[key])
	}

	var merged []string
	expand.ListEnviron(pairs...).Each(func(name string, vr expand.Variable) bool {
		if vr.Exported {
			merged = append(merged, name+"="+vr.String())
		}
		return true
	})
	return merged
}
