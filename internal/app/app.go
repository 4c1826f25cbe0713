// Package app drives one dirshell run: record a new command line, or pick a
// remembered one, resolve its environment and launch it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/bogvak/dirshell/internal/envfile"
	"github.com/bogvak/dirshell/internal/history"
	"github.com/bogvak/dirshell/internal/hook"
	"github.com/bogvak/dirshell/internal/launcher"
	"github.com/bogvak/dirshell/internal/safety"
	"go.uber.org/zap"
)

const (
	SelectPrompt = ">>"
	EditPrompt   = "Command: "
)

// Prompter is the interactive capability the run depends on. A false bool
// means the user cancelled.
type Prompter interface {
	Select(prompt string, options []string) (string, bool, error)
	EditText(prompt string, initial string) (string, bool, error)
}

type Launcher interface {
	Run(ctx context.Context, dir string, line string, env map[string]string, forceShell bool) (launcher.Result, error)
}

// App holds everything a run needs. Dir is the working directory the
// history and env files live in.
type App struct {
	Dir          string
	History      *history.Store
	EnvExtension string
	EnvEnabled   bool
	Prompter     Prompter
	Launcher     Launcher
	Out          io.Writer
	ErrOut       io.Writer
	Logger       *zap.Logger
	Clipboard    func(string) error
}

// Options configures New.
type Options struct {
	Dir          string
	HistoryFile  string
	EnvExtension string
	EnvEnabled   bool
	Prompter     Prompter
	Launcher     Launcher
	Logger       *zap.Logger
}

func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		Dir:          opts.Dir,
		History:      history.NewStore(opts.Dir, opts.HistoryFile),
		EnvExtension: opts.EnvExtension,
		EnvEnabled:   opts.EnvEnabled,
		Prompter:     opts.Prompter,
		Launcher:     opts.Launcher,
		Out:          os.Stdout,
		ErrOut:       os.Stderr,
		Logger:       logger,
		Clipboard:    clipboard.WriteAll,
	}
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// Run executes one invocation. Cancelled prompts and missing files end the
// run successfully; everything else fatal comes back as *Error.
func (a *App) Run(ctx context.Context, inv Invocation) error {
	exists, err := a.History.Exists()
	if err != nil {
		return newError(KindHistoryIO, "check history file", err)
	}

	if !inv.Interactive() {
		return a.record(inv, exists)
	}
	if !exists {
		a.logger().Debug("no history file, nothing to pick", zap.String("path", a.History.Path()))
		return nil
	}
	return a.pickAndLaunch(ctx, inv)
}

// record appends a new command line without running it.
func (a *App) record(inv Invocation, exists bool) error {
	if inv.FromHook {
		if !exists {
			return nil
		}
		if hook.ShouldIgnore(inv.Line) {
			a.logger().Debug("hook command ignored", safety.CommandField(inv.Line))
			return nil
		}
	}
	if history.IsMultiline(inv.Line) {
		return newError(KindUsage, "record command", history.ErrMultiline)
	}

	lines, err := a.History.Load()
	if err != nil {
		return newError(KindHistoryIO, "load history", err)
	}
	if history.Contains(lines, inv.Line) {
		a.logger().Debug("command already recorded", safety.CommandField(inv.Line))
		return nil
	}
	if err := a.History.Append(inv.Line); err != nil {
		return newError(KindHistoryIO, "record command", err)
	}
	a.logger().Info("command recorded",
		safety.CommandField(inv.Line),
		zap.String("history", a.History.Path()),
		zap.Bool("from_hook", inv.FromHook))
	return nil
}

func (a *App) pickAndLaunch(ctx context.Context, inv Invocation) error {
	lines, err := a.History.Load()
	if err != nil {
		return newError(KindHistoryIO, "load history", err)
	}
	if len(lines) == 0 {
		return nil
	}

	fmt.Fprintf(a.Out, "Current dir: %s\n", a.Dir)
	line, ok, err := a.chooseLine(lines, inv.Edit)
	if err != nil {
		return newError(KindInfrastructure, "prompt", err)
	}
	if !ok {
		a.logger().Debug("selection cancelled")
		return nil
	}

	env := map[string]string{}
	if !inv.IgnoreEnv && a.EnvEnabled {
		resolver := envfile.Resolver{Extension: a.EnvExtension, Chooser: a.Prompter, Logger: a.logger()}
		env, err = resolver.Resolve(a.Dir)
		if err != nil {
			return newError(KindEnvIO, "resolve env file", err)
		}
	}

	if history.IsMultiline(line) {
		return newError(KindUsage, "edit command", history.ErrMultiline)
	}
	if err := a.History.Persist(history.Promote(lines, line)); err != nil {
		return newError(KindHistoryIO, "persist history", err)
	}

	if inv.Copy {
		a.copyToClipboard(line)
	}

	fmt.Fprintln(a.Out, line)
	a.logger().Info("launching command",
		safety.CommandField(line),
		safety.EnvKeysField(env),
		zap.Bool("force_shell", inv.ForceShell))
	result, err := a.Launcher.Run(ctx, a.Dir, line, env, inv.ForceShell)
	if err != nil {
		return classifyLaunchError(err)
	}
	if result.ExitCode != 0 {
		a.logger().Info("command exited with non-zero status", zap.Int("exit_code", result.ExitCode))
	}
	return nil
}

// chooseLine runs the select prompt and, in edit mode, the edit prompt.
func (a *App) chooseLine(lines []string, edit bool) (string, bool, error) {
	choice, ok, err := a.Prompter.Select(SelectPrompt, lines)
	if err != nil {
		return "", false, err
	}
	if !ok || strings.TrimSpace(choice) == "" {
		return "", false, nil
	}
	if !edit {
		return choice, true, nil
	}

	edited, ok, err := a.Prompter.EditText(EditPrompt, choice)
	if err != nil {
		return "", false, err
	}
	if !ok || strings.TrimSpace(edited) == "" {
		return "", false, nil
	}
	return edited, true, nil
}

func (a *App) copyToClipboard(line string) {
	if a.Clipboard == nil {
		return
	}
	if err := a.Clipboard(line); err != nil {
		a.logger().Warn("clipboard copy failed", zap.Error(err))
		if a.ErrOut != nil {
			fmt.Fprintf(a.ErrOut, "dirshell: could not copy command to clipboard: %v\n", err)
		}
	}
}

func classifyLaunchError(err error) error {
	var spawnErr *launcher.SpawnError
	if errors.As(err, &spawnErr) {
		return newError(KindSpawn, "launch command", err)
	}
	var waitErr *launcher.WaitError
	if errors.As(err, &waitErr) {
		return newError(KindWait, "launch command", err)
	}
	if errors.Is(err, launcher.ErrEmptyCommand) {
		return newError(KindUsage, "launch command", err)
	}
	return newError(KindInfrastructure, "launch command", err)
}
