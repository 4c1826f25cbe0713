package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bogvak/dirshell/internal/history"
	"github.com/bogvak/dirshell/internal/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyName = ".comhistory"

type promptCall struct {
	kind    string
	prompt  string
	options []string
	initial string
}

// scriptedPrompter answers prompts in order. An empty answer with ok=false
// is a cancellation.
type scriptedPrompter struct {
	answers []scriptedAnswer
	calls   []promptCall
}

type scriptedAnswer struct {
	value string
	ok    bool
	err   error
}

func (p *scriptedPrompter) next() scriptedAnswer {
	if len(p.answers) == 0 {
		return scriptedAnswer{}
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer
}

func (p *scriptedPrompter) Select(prompt string, options []string) (string, bool, error) {
	p.calls = append(p.calls, promptCall{kind: "select", prompt: prompt, options: append([]string(nil), options...)})
	answer := p.next()
	return answer.value, answer.ok, answer.err
}

func (p *scriptedPrompter) EditText(prompt string, initial string) (string, bool, error) {
	p.calls = append(p.calls, promptCall{kind: "edit", prompt: prompt, initial: initial})
	answer := p.next()
	return answer.value, answer.ok, answer.err
}

type launchCall struct {
	dir        string
	line       string
	env        map[string]string
	forceShell bool
}

type fakeLauncher struct {
	calls  []launchCall
	result launcher.Result
	err    error
}

func (l *fakeLauncher) Run(_ context.Context, dir string, line string, env map[string]string, forceShell bool) (launcher.Result, error) {
	l.calls = append(l.calls, launchCall{dir: dir, line: line, env: env, forceShell: forceShell})
	return l.result, l.err
}

type fixture struct {
	dir      string
	app      *App
	prompter *scriptedPrompter
	launcher *fakeLauncher
	out      *bytes.Buffer
	errOut   *bytes.Buffer
}

func newFixture(t *testing.T, answers ...scriptedAnswer) *fixture {
	t.Helper()
	dir := t.TempDir()
	prompter := &scriptedPrompter{answers: answers}
	fake := &fakeLauncher{}
	a := New(Options{
		Dir:          dir,
		HistoryFile:  historyName,
		EnvExtension: "env",
		EnvEnabled:   true,
		Prompter:     prompter,
		Launcher:     fake,
	})
	var out, errOut bytes.Buffer
	a.Out = &out
	a.ErrOut = &errOut
	a.Clipboard = func(string) error { return errors.New("clipboard must not be touched") }
	return &fixture{dir: dir, app: a, prompter: prompter, launcher: fake, out: &out, errOut: &errOut}
}

func (f *fixture) writeHistory(t *testing.T, lines ...string) {
	t.Helper()
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, historyName), []byte(content), 0o644))
}

func (f *fixture) writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

func (f *fixture) historyLines(t *testing.T) []string {
	t.Helper()
	lines, err := history.Load(filepath.Join(f.dir, historyName))
	require.NoError(t, err)
	return lines
}

func pick(value string) scriptedAnswer {
	return scriptedAnswer{value: value, ok: true}
}

func cancel() scriptedAnswer {
	return scriptedAnswer{}
}

func TestRunWithoutHistoryAndArgumentsDoesNothing(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	assert.Empty(t, f.prompter.calls)
	assert.Empty(t, f.launcher.calls)
	assert.NoFileExists(t, filepath.Join(f.dir, historyName))
}

func TestScenarioA_PromotionSortsRemainder(t *testing.T) {
	f := newFixture(t, pick("b"))
	f.writeHistory(t, "a", "b", "c")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	assert.Equal(t, []string{"b", "a", "c"}, f.historyLines(t))
	require.Len(t, f.prompter.calls, 1)
	assert.Equal(t, SelectPrompt, f.prompter.calls[0].prompt)
	assert.Equal(t, []string{"a", "b", "c"}, f.prompter.calls[0].options)
	require.Len(t, f.launcher.calls, 1)
	assert.Equal(t, "b", f.launcher.calls[0].line)
	assert.Equal(t, f.dir, f.launcher.calls[0].dir)
}

func TestSelectionShowsOnDiskOrder(t *testing.T) {
	f := newFixture(t, cancel())
	f.writeHistory(t, "zeta", "alpha", "mid")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, f.prompter.calls[0].options)
}

func TestScenarioB_RecordCreatesHistory(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation([]string{"foo", "bar"})))

	assert.Equal(t, []string{"foo bar"}, f.historyLines(t))
	assert.Empty(t, f.launcher.calls)
	assert.Empty(t, f.prompter.calls)
	assert.Equal(t, 0, ExitCode(nil))
}

func TestScenarioC_RecordExistingLineIsNoop(t *testing.T) {
	f := newFixture(t)
	f.writeHistory(t, "ls", "foo bar")
	before, err := os.ReadFile(filepath.Join(f.dir, historyName))
	require.NoError(t, err)

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation([]string{"foo", "bar"})))

	after, err := os.ReadFile(filepath.Join(f.dir, historyName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.launcher.calls)
}

func TestRecordAppendsNewLineAtEnd(t *testing.T) {
	f := newFixture(t)
	f.writeHistory(t, "zzz", "aaa")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation([]string{"make", "build"})))

	assert.Equal(t, []string{"zzz", "aaa", "make build"}, f.historyLines(t))
}

func TestScenarioD_NoEnvSentinelSkipsEnvFiles(t *testing.T) {
	f := newFixture(t, pick("deploy"))
	f.writeHistory(t, "deploy")
	f.writeFile(t, ".env", "STAGE=prod\n")
	f.writeFile(t, "other.env", "STAGE=dev\n")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation([]string{"--"})))

	require.Len(t, f.launcher.calls, 1)
	assert.Empty(t, f.launcher.calls[0].env)
	require.Len(t, f.prompter.calls, 1, "no env file prompt expected")
}

func TestScenarioE_EditedLineRunsAndIsPromoted(t *testing.T) {
	f := newFixture(t, pick("ls -la"), pick("ls -la /tmp"))
	f.writeHistory(t, "pwd", "ls -la")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation([]string{"*"})))

	require.Len(t, f.prompter.calls, 2)
	assert.Equal(t, "edit", f.prompter.calls[1].kind)
	assert.Equal(t, EditPrompt, f.prompter.calls[1].prompt)
	assert.Equal(t, "ls -la", f.prompter.calls[1].initial)
	require.Len(t, f.launcher.calls, 1)
	assert.Equal(t, "ls -la /tmp", f.launcher.calls[0].line)
	assert.Equal(t, []string{"ls -la /tmp", "ls -la", "pwd"}, f.historyLines(t))
}

func TestEditCancelledOrBlankDoesNothing(t *testing.T) {
	for name, answer := range map[string]scriptedAnswer{
		"cancelled": cancel(),
		"blank":     pick("   "),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, pick("ls"), answer)
			f.writeHistory(t, "pwd", "ls")

			require.NoError(t, f.app.Run(context.Background(), ParseInvocation([]string{"*"})))

			assert.Empty(t, f.launcher.calls)
			assert.Equal(t, []string{"pwd", "ls"}, f.historyLines(t))
		})
	}
}

func TestSelectionCancelledDoesNothing(t *testing.T) {
	f := newFixture(t, cancel())
	f.writeHistory(t, "b", "a")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	assert.Empty(t, f.launcher.calls)
	assert.Equal(t, []string{"b", "a"}, f.historyLines(t))
}

func TestSingleEnvFileIsInjectedWithoutPrompt(t *testing.T) {
	f := newFixture(t, pick("serve"))
	f.writeHistory(t, "serve")
	f.writeFile(t, ".env", "PORT=8080\nNAME= spaced \n")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	require.Len(t, f.launcher.calls, 1)
	assert.Equal(t, map[string]string{"PORT": "8080", "NAME": " spaced "}, f.launcher.calls[0].env)
	assert.Len(t, f.prompter.calls, 1)
}

func TestMultipleEnvFilesPromptForChoice(t *testing.T) {
	f := newFixture(t, pick("serve"), pick("prod.env"))
	f.writeHistory(t, "serve")
	f.writeFile(t, "dev.env", "STAGE=dev\n")
	f.writeFile(t, "prod.env", "STAGE=prod\n")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	require.Len(t, f.prompter.calls, 2)
	assert.Equal(t, "envfile::", f.prompter.calls[1].prompt)
	assert.Equal(t, []string{"dev.env", "prod.env"}, f.prompter.calls[1].options)
	assert.Equal(t, map[string]string{"STAGE": "prod"}, f.launcher.calls[0].env)
}

func TestCancelledEnvChoiceRunsWithEmptyEnv(t *testing.T) {
	f := newFixture(t, pick("serve"), cancel())
	f.writeHistory(t, "serve")
	f.writeFile(t, "dev.env", "STAGE=dev\n")
	f.writeFile(t, "prod.env", "STAGE=prod\n")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	require.Len(t, f.launcher.calls, 1)
	assert.Empty(t, f.launcher.calls[0].env)
}

func TestEnvDisabledByConfigSkipsDiscovery(t *testing.T) {
	f := newFixture(t, pick("serve"))
	f.app.EnvEnabled = false
	f.writeHistory(t, "serve")
	f.writeFile(t, ".env", "STAGE=dev\n")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	assert.Empty(t, f.launcher.calls[0].env)
}

func TestUnreadableEnvFileIsEnvError(t *testing.T) {
	f := newFixture(t, pick("serve"))
	f.writeHistory(t, "serve")
	f.writeFile(t, ".env", "BROKEN=\xff\n")

	err := f.app.Run(context.Background(), ParseInvocation(nil))

	assert.Equal(t, 4, ExitCode(err))
	assert.Empty(t, f.launcher.calls)
	assert.Equal(t, []string{"serve"}, f.historyLines(t))
}

func TestInvalidHistoryEncodingIsHistoryError(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, historyName, "ok\n\xfe\n")

	err := f.app.Run(context.Background(), ParseInvocation(nil))

	assert.Equal(t, 3, ExitCode(err))
	assert.ErrorIs(t, err, history.ErrInvalidEncoding)
}

func TestHistoryIsPersistedBeforeLaunchFailure(t *testing.T) {
	f := newFixture(t, pick("b"))
	f.writeHistory(t, "c", "b", "a")
	f.launcher.err = &launcher.SpawnError{Program: "b", Err: errors.New("not found")}

	err := f.app.Run(context.Background(), ParseInvocation(nil))

	assert.Equal(t, 5, ExitCode(err))
	assert.Equal(t, []string{"b", "a", "c"}, f.historyLines(t))
}

func TestWaitFailureMapsToWaitExitCode(t *testing.T) {
	f := newFixture(t, pick("b"))
	f.writeHistory(t, "b")
	f.launcher.err = &launcher.WaitError{Program: "b", Err: errors.New("interrupted")}

	err := f.app.Run(context.Background(), ParseInvocation(nil))

	assert.Equal(t, 6, ExitCode(err))
}

func TestNonZeroChildExitIsNotAnError(t *testing.T) {
	f := newFixture(t, pick("false"))
	f.writeHistory(t, "false")
	f.launcher.result = launcher.Result{ExitCode: 1}

	assert.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))
}

func TestPromptFailureIsInfrastructureError(t *testing.T) {
	f := newFixture(t, scriptedAnswer{err: errors.New("no tty")})
	f.writeHistory(t, "ls")

	err := f.app.Run(context.Background(), ParseInvocation(nil))

	assert.Equal(t, 1, ExitCode(err))
	assert.ErrorContains(t, err, "no tty")
}

func TestInteractiveRunPrintsDirectoryAndCommand(t *testing.T) {
	f := newFixture(t, pick("make"))
	f.writeHistory(t, "make")

	require.NoError(t, f.app.Run(context.Background(), ParseInvocation(nil)))

	assert.Equal(t, "Current dir: "+f.dir+"\nmake\n", f.out.String())
}

func TestCopyPutsFinalLineOnClipboard(t *testing.T) {
	f := newFixture(t, pick("make test"))
	f.writeHistory(t, "make test")
	var copied string
	f.app.Clipboard = func(text string) error {
		copied = text
		return nil
	}

	inv := ParseInvocation(nil)
	inv.Copy = true
	require.NoError(t, f.app.Run(context.Background(), inv))

	assert.Equal(t, "make test", copied)
	require.Len(t, f.launcher.calls, 1)
}

func TestClipboardFailureOnlyWarns(t *testing.T) {
	f := newFixture(t, pick("make test"))
	f.writeHistory(t, "make test")

	inv := ParseInvocation(nil)
	inv.Copy = true
	require.NoError(t, f.app.Run(context.Background(), inv))

	assert.Contains(t, f.errOut.String(), "could not copy command to clipboard")
	require.Len(t, f.launcher.calls, 1)
}

func TestForceShellIsPassedToLauncher(t *testing.T) {
	f := newFixture(t, pick("ls | wc -l"))
	f.writeHistory(t, "ls | wc -l")

	inv := ParseInvocation(nil)
	inv.ForceShell = true
	require.NoError(t, f.app.Run(context.Background(), inv))

	assert.True(t, f.launcher.calls[0].forceShell)
}

func TestHookModeNeverCreatesHistory(t *testing.T) {
	f := newFixture(t)

	inv := ParseInvocation([]string{"git", "status"})
	inv.FromHook = true
	require.NoError(t, f.app.Run(context.Background(), inv))

	assert.NoFileExists(t, filepath.Join(f.dir, historyName))
}

func TestHookModeRecordsIntoExistingHistory(t *testing.T) {
	f := newFixture(t)
	f.writeHistory(t, "ls")

	for _, line := range []string{"git status", "dirshell --doctor", "git status"} {
		inv := ParseInvocation(strings.Fields(line))
		inv.FromHook = true
		require.NoError(t, f.app.Run(context.Background(), inv))
	}

	assert.Equal(t, []string{"ls", "git status"}, f.historyLines(t))
}

func TestRecordRejectsMultilineCommand(t *testing.T) {
	f := newFixture(t)
	f.writeHistory(t, "ls")

	for i := 0; i < 2; i++ {
		err := f.app.Run(context.Background(), ParseInvocation([]string{"for f in *; do\necho $f; done"}))
		require.Error(t, err)
		assert.ErrorIs(t, err, history.ErrMultiline)
		assert.Equal(t, 2, ExitCode(err))
	}

	assert.Equal(t, []string{"ls"}, f.historyLines(t))
}

func TestHookModeSkipsMultilineCommand(t *testing.T) {
	f := newFixture(t)
	f.writeHistory(t, "ls")

	for _, line := range []string{"for f in *; do\necho $f; done", "make\r", "for f in *; do\necho $f; done"} {
		inv := ParseInvocation([]string{line})
		inv.FromHook = true
		require.NoError(t, f.app.Run(context.Background(), inv))
	}

	assert.Equal(t, []string{"ls"}, f.historyLines(t))
}

func TestEditedMultilineCommandIsNotPersisted(t *testing.T) {
	f := newFixture(t, pick("ls"), pick("ls\nrm -rf tmp"))
	f.writeHistory(t, "ls", "make")

	err := f.app.Run(context.Background(), Invocation{Edit: true})

	assert.Equal(t, 2, ExitCode(err))
	assert.Equal(t, []string{"ls", "make"}, f.historyLines(t))
	assert.Empty(t, f.launcher.calls)
}
