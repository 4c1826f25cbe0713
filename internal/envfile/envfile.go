// Package envfile discovers KEY=VALUE files in the working directory and
// turns the chosen one into an environment map for the launched command.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// SelectPrompt is the title shown when several env files compete.
const SelectPrompt = "envfile::"

const maxEnvLineBytes = 1024 * 1024

// ErrInvalidEncoding marks an env file line that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("env file line is not valid UTF-8")

// Chooser picks one option out of several. The bool is false when the user
// cancelled.
type Chooser interface {
	Select(prompt string, options []string) (string, bool, error)
}

// Resolver resolves the environment for one run of a command.
type Resolver struct {
	Extension string
	Chooser   Chooser
	Logger    *zap.Logger
}

// Discover lists the files directly inside dir whose name ends with
// extension, sorted by name. It returns nil when nothing matches.
func Discover(dir string, extension string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not list env files in %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), extension) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	return names, nil
}

// Select returns the single candidate as is, or asks the chooser when there
// are several. A cancelled prompt yields ok=false and no error.
func Select(chooser Chooser, candidates []string) (string, bool, error) {
	switch len(candidates) {
	case 0:
		return "", false, nil
	case 1:
		return candidates[0], true, nil
	}
	if chooser == nil {
		return "", false, fmt.Errorf("%d env files found but no interactive chooser is available", len(candidates))
	}
	choice, ok, err := chooser.Select(SelectPrompt, candidates)
	if err != nil {
		return "", false, fmt.Errorf("could not choose env file: %w", err)
	}
	if !ok || choice == "" {
		return "", false, nil
	}
	return choice, true, nil
}

// Parse reads path and splits every line at its first '='. Lines without
// '=' are skipped and nothing is trimmed. Later keys override earlier ones.
func Parse(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open env file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEnvLineBytes)

	env := map[string]string{}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNum, ErrInvalidEncoding)
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		env[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read env file %s: %w", path, err)
	}
	return env, nil
}

// Resolve discovers, chooses and parses an env file in dir. No candidate or
// a cancelled choice produces an empty map, never an error.
func (r Resolver) Resolve(dir string) (map[string]string, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	candidates, err := Discover(dir, r.Extension)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		logger.Debug("no env file found", zap.String("dir", dir), zap.String("extension", r.Extension))
		return map[string]string{}, nil
	}

	name, ok, err := Select(r.Chooser, candidates)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug("env file selection cancelled", zap.Strings("candidates", candidates))
		return map[string]string{}, nil
	}

	env, err := Parse(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded env file", zap.String("file", name), zap.Int("keys", len(env)))
	return env, nil
}
