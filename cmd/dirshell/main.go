package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sort"
	"strings"
	"time"

	"github.com/bogvak/dirshell/internal/app"
	"github.com/bogvak/dirshell/internal/appdirs"
	"github.com/bogvak/dirshell/internal/appupdate"
	"github.com/bogvak/dirshell/internal/config"
	"github.com/bogvak/dirshell/internal/envfile"
	"github.com/bogvak/dirshell/internal/history"
	"github.com/bogvak/dirshell/internal/hook"
	"github.com/bogvak/dirshell/internal/launcher"
	"github.com/bogvak/dirshell/internal/safety"
	"github.com/bogvak/dirshell/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// errHelpShown means cobra already printed the help text.
var errHelpShown = errors.New("help shown")

type options struct {
	Version    bool
	UI         string
	Edit       bool
	NoEnv      bool
	Shell      bool
	Copy       bool
	FromHook   bool
	Sets       []string
	Save       bool
	ShowConfig bool
	Get        string
	SetupHooks bool
	Doctor     bool

	// Args is everything from the first positional argument on.
	Args []string
	// BareDash is set when the only positional input was a lone "--".
	BareDash bool
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stdout)
	if errors.Is(err, errHelpShown) {
		return
	}
	if err == nil {
		err = run(context.Background(), opts, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dirshell: %v\n", err)
		os.Exit(app.ExitCode(err))
	}
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirshell [command line...]",
		Short: "Per-directory command history launcher",
		Long: `dirshell remembers the command lines you use in a directory and lets you
pick one to run again.

  dirshell go test ./...   record a command line in this directory
  dirshell                 pick a recorded line and run it
  dirshell --              pick and run without loading an env file
  dirshell *               pick, edit, then run`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.BoolVarP(&opts.Version, "version", "v", false, "print version and exit")
	flags.StringVar(&opts.UI, "ui", "", "ui backend override: auto|bubbletea|huh|tview|plain")
	flags.BoolVarP(&opts.Edit, "edit", "e", false, "edit the picked command before running it")
	flags.BoolVarP(&opts.NoEnv, "no-env", "n", false, "do not load an env file")
	flags.BoolVarP(&opts.Shell, "shell", "s", false, "always run through the shell interpreter")
	flags.BoolVar(&opts.Copy, "copy", false, "copy the final command line to the clipboard")
	flags.BoolVar(&opts.FromHook, "from-hook", false, "record a line captured by a shell hook")
	flags.StringArrayVar(&opts.Sets, "set", nil, "override a config value for this run (key=value)")
	flags.BoolVar(&opts.Save, "save", false, "persist --ui and --set overrides to the config file")
	flags.BoolVar(&opts.ShowConfig, "show-config", false, "print the effective config")
	flags.StringVar(&opts.Get, "get", "", "print one effective config value (e.g. ui.backend)")
	flags.BoolVar(&opts.SetupHooks, "setup-hooks", false, "print the shell hook snippet (optionally name zsh, bash or fish)")
	flags.BoolVar(&opts.Doctor, "doctor", false, "print environment checks")
	_ = flags.MarkHidden("from-hook")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return app.UsageError(err)
	})
	return cmd
}

func parseArgs(args []string, out io.Writer) (options, error) {
	var opts options
	ran := false
	cmd := newRootCommand(&opts)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.RunE = func(c *cobra.Command, positional []string) error {
		ran = true
		opts.Args = positional
		opts.BareDash = len(positional) == 0 && c.ArgsLenAtDash() == 0
		return nil
	}
	if err := cmd.Execute(); err != nil {
		var appErr *app.Error
		if errors.As(err, &appErr) {
			return options{}, err
		}
		return options{}, app.UsageError(err)
	}
	if !ran {
		return options{}, errHelpShown
	}
	return opts, nil
}

// invocation turns the parsed flags and positional input into one run.
func invocation(opts options) (app.Invocation, error) {
	positional := opts.Args
	if opts.BareDash {
		positional = []string{app.NoEnvSentinel}
	}
	inv := app.ParseInvocation(positional)
	inv.IgnoreEnv = inv.IgnoreEnv || opts.NoEnv
	inv.Edit = inv.Edit || opts.Edit
	inv.ForceShell = opts.Shell
	inv.Copy = opts.Copy
	inv.FromHook = opts.FromHook

	if !inv.Interactive() && !inv.FromHook && (opts.Edit || opts.NoEnv) {
		return app.Invocation{}, app.UsageError(errors.New("--edit and --no-env only apply when picking from history"))
	}
	return inv, nil
}

// configChanges collects --ui and --set into key/value assignments.
func configChanges(opts options) (map[string]string, error) {
	changes := map[string]string{}
	if strings.TrimSpace(opts.UI) != "" {
		changes["ui.backend"] = opts.UI
	}
	for _, raw := range opts.Sets {
		key, value, err := config.ParseAssignment(raw)
		if err != nil {
			return nil, err
		}
		changes[key] = value
	}
	return changes, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	if opts.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		return app.NewError(app.KindInfrastructure, "load config", err)
	}

	changes, err := configChanges(opts)
	if err != nil {
		return app.UsageError(err)
	}
	for _, key := range sortedKeys(changes) {
		if err := cfg.Set(key, changes[key]); err != nil {
			return app.UsageError(err)
		}
	}
	if opts.Save && len(changes) > 0 {
		if err := config.Save(cfgPath, cfg); err != nil {
			return app.NewError(app.KindInfrastructure, "save config", err)
		}
	}

	logger := initializeLogger(cfg.Log.Level)
	defer logger.Sync()
	logSessionStart(logger, os.Args)

	switch {
	case opts.ShowConfig:
		return showConfig(stdout, cfg, cfgPath)
	case opts.Get != "":
		return printConfigValue(stdout, cfg, opts.Get)
	case opts.Doctor:
		dir, _ := os.Getwd()
		return runDoctor(stdout, cfg, dir)
	case opts.SetupHooks:
		return setupHooks(stdout, opts.Args)
	case opts.Save && len(opts.Args) == 0 && !opts.BareDash:
		if len(changes) == 0 {
			return app.UsageError(errors.New("--save needs --ui or --set"))
		}
		fmt.Fprintf(stdout, "saved settings to %s:\n", cfgPath)
		for _, key := range sortedKeys(changes) {
			fmt.Fprintf(stdout, "  %s=%s\n", key, changes[key])
		}
		return nil
	}

	inv, err := invocation(opts)
	if err != nil {
		return err
	}
	if inv.FromHook && inv.Interactive() {
		return nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return app.NewError(app.KindInfrastructure, "", fmt.Errorf("could not resolve working directory: %w", err))
	}

	var updates <-chan string
	if inv.Interactive() && cfg.Update.Check {
		updates = appupdate.HandleVersionCheck(ctx, appupdate.Checker{
			CurrentVersion: version,
			Repository:     cfg.Update.Repository,
			MarkerPath:     appdirs.MarkerFilePath(),
			Updater:        appupdate.DefaultUpdater{},
			Logger:         logger,
		})
	}

	a := app.New(app.Options{
		Dir:          dir,
		HistoryFile:  cfg.History.File,
		EnvExtension: cfg.Env.Extension,
		EnvEnabled:   cfg.Env.Enabled,
		Prompter:     ui.NewPrompter(cfg.UI.Backend),
		Launcher:     launcher.New(cfg.Launcher.ExceptionCommands, cfg.Launcher.Shell, logger),
		Logger:       logger,
	})
	runErr := a.Run(ctx, inv)

	if updates != nil {
		latest, err := appupdate.Await(updates, time.Duration(cfg.Update.TimeoutMS)*time.Millisecond)
		if err != nil {
			logger.Debug("version check not finished", zap.Error(err))
		} else if latest != "" {
			appupdate.PrintAdvisory(stdout, latest, cfg.Update.Repository)
		}
	}
	return runErr
}

func initializeLogger(level string) *zap.Logger {
	logLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if version == "dev" {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logPath, err := appdirs.LogFilePath()
	if err != nil {
		return zap.NewNop()
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	loggerConfig.OutputPaths = []string{logPath}
	loggerConfig.ErrorOutputPaths = []string{logPath}
	logger, err := loggerConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func logSessionStart(logger *zap.Logger, args []string) {
	logger.Debug("-------- new dirshell session --------", safety.ArgsField(args))
}

func showConfig(w io.Writer, cfg config.Config, cfgPath string) error {
	data, err := config.Marshal(cfg)
	if err != nil {
		return app.NewError(app.KindInfrastructure, "show config", err)
	}
	fmt.Fprintf(w, "# %s\n", cfgPath)
	_, _ = w.Write(data)
	return nil
}

func printConfigValue(w io.Writer, cfg config.Config, key string) error {
	value, err := cfg.Get(key)
	if err != nil {
		return app.UsageError(err)
	}
	fmt.Fprintln(w, value)
	return nil
}

func setupHooks(w io.Writer, args []string) error {
	shell := detectShell()
	if len(args) > 0 {
		shell = args[0]
	}
	snippet, err := hook.Snippet(shell)
	if err != nil {
		return app.UsageError(err)
	}
	fmt.Fprintf(w, "Add this %s snippet to your shell rc file:\n\n", shell)
	fmt.Fprintln(w, snippet)
	return nil
}

type check struct {
	Key    string
	Value  string
	Status string
}

func doctorChecks(cfg config.Config, dir string) ([]check, error) {
	cfgPath, err := appdirs.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	statePath, err := appdirs.StateDir()
	if err != nil {
		return nil, err
	}
	logPath, err := appdirs.StateFilePath("dirshell.log")
	if err != nil {
		return nil, err
	}

	checks := []check{
		{Key: "os", Value: goruntime.GOOS, Status: "ok"},
		{Key: "config_path", Value: cfgPath, Status: statusFile(cfgPath)},
		{Key: "state_dir", Value: statePath, Status: statusDir(statePath)},
		{Key: "log_file", Value: logPath, Status: statusFile(logPath)},
		uiBackendCheck(cfg.UI.Backend),
	}
	if dir == "" {
		return append(checks, check{Key: "working_dir", Value: "unknown", Status: "error"}), nil
	}

	historyPath := filepath.Join(dir, cfg.History.File)
	historyCheck := check{Key: "history_file", Value: historyPath, Status: statusFile(historyPath)}
	if historyCheck.Status == "ok" {
		if lines, err := history.Load(historyPath); err != nil {
			historyCheck.Status = "error"
		} else {
			historyCheck.Value = fmt.Sprintf("%s (%d commands)", historyPath, len(lines))
		}
	}
	checks = append(checks, historyCheck)

	switch candidates, err := envfile.Discover(dir, cfg.Env.Extension); {
	case !cfg.Env.Enabled:
		checks = append(checks, check{Key: "env_files", Value: "disabled", Status: "ok"})
	case err != nil:
		checks = append(checks, check{Key: "env_files", Value: err.Error(), Status: "error"})
	case len(candidates) == 0:
		checks = append(checks, check{Key: "env_files", Value: "none (*." + cfg.Env.Extension + ")", Status: "ok"})
	default:
		checks = append(checks, check{Key: "env_files", Value: strings.Join(candidates, ", "), Status: "ok"})
	}

	shell := launcher.ResolveShell(cfg.Launcher.Shell)
	if goruntime.GOOS == "windows" {
		shell = cfg.Launcher.Shell
		if shell == "" {
			shell = os.Getenv("COMSPEC")
		}
		if shell == "" {
			shell = "cmd"
		}
	}
	checks = append(checks, check{Key: "shell", Value: shell, Status: statusBinary(shell)})
	return checks, nil
}

// uiBackendCheck reports the backend a picker would start with. Status
// "plain" means no terminal UI is available from this process.
func uiBackendCheck(configured string) check {
	resolved := ui.ResolveBackend(configured)
	c := check{Key: "ui_backend", Value: resolved, Status: "ok"}
	if !ui.IsInteractiveBackend(resolved) {
		c.Status = "plain"
	}
	if ui.NormalizeBackend(configured) != resolved {
		c.Value = fmt.Sprintf("%s (configured %s)", resolved, ui.NormalizeBackend(configured))
	}
	return c
}

func runDoctor(w io.Writer, cfg config.Config, dir string) error {
	checks, err := doctorChecks(cfg, dir)
	if err != nil {
		return app.NewError(app.KindInfrastructure, "doctor", err)
	}
	fmt.Fprintln(w, "doctor checks:")
	for _, c := range checks {
		fmt.Fprintf(w, "  %-13s %-8s %s\n", c.Key, c.Status, c.Value)
	}
	return nil
}

func statusFile(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "missing"
		}
		return "error"
	}
	if info.IsDir() {
		return "error"
	}
	return "ok"
}

func statusDir(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "missing"
		}
		return "error"
	}
	if !info.IsDir() {
		return "error"
	}
	return "ok"
}

func statusBinary(name string) string {
	if filepath.IsAbs(name) {
		return statusFile(name)
	}
	if _, err := exec.LookPath(name); err != nil {
		return "missing"
	}
	return "ok"
}

func detectShell() string {
	shellPath := strings.TrimSpace(os.Getenv("SHELL"))
	if shellPath == "" {
		return "zsh"
	}
	base := filepath.Base(shellPath)
	switch base {
	case "zsh", "bash", "fish":
		return base
	default:
		return "zsh"
	}
}
