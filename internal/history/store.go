package history

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

const maxHistoryLineBytes = 1024 * 1024

// ErrInvalidEncoding marks a history line that is not valid UTF-8. Such a
// file is not trusted enough to be rewritten.
var ErrInvalidEncoding = errors.New("history line is not valid UTF-8")

// ErrMultiline marks an entry holding a line break. Written as is it would
// split into several entries on the next load.
var ErrMultiline = errors.New("command line contains a line break")

// Store is the per-directory history file. Entries are full command lines,
// one per line, compared byte for byte.
type Store struct {
	path string
}

// NewStore binds the history file fileName inside dir.
func NewStore(dir string, fileName string) *Store {
	return &Store{path: filepath.Join(dir, fileName)}
}

// Path is the location of the history file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Exists() (bool, error) {
	return Exists(s.path)
}

func (s *Store) Load() ([]string, error) {
	return Load(s.path)
}

func (s *Store) Append(line string) error {
	return Append(s.path, line)
}

func (s *Store) Persist(lines []string) error {
	return Persist(s.path, lines)
}

// Exists reports whether the history file is present. Stat failures other
// than a missing file are returned.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("could not stat history file: %w", err)
}

// Load returns the lines of the history file in file order. A missing file
// is an empty history.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("could not open history file: %w", err)
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("could not read history file %s: %w", path, err)
	}
	return lines, nil
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxHistoryLineBytes)

	lines := []string{}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("line %d: %w", lineNum, ErrInvalidEncoding)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// IsMultiline reports whether line would not survive as a single entry.
func IsMultiline(line string) bool {
	return strings.ContainsAny(line, "\r\n")
}

func Contains(lines []string, line string) bool {
	return lo.Contains(lines, line)
}

// Append adds a single line to the end of the file, creating it when
// needed. Callers check Contains first; nothing is deduplicated here.
func Append(path string, line string) error {
	if IsMultiline(line) {
		return ErrMultiline
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not open history file: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("could not append to history file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close history file: %w", err)
	}
	return nil
}

// Promote returns a new list with line at the head and every other entry in
// ascending byte order. The input is left untouched.
func Promote(lines []string, line string) []string {
	rest := lo.Without(lines, line)
	slices.Sort(rest)
	return append([]string{line}, rest...)
}

// Persist replaces the history file with lines, in order. The content is
// written to a sibling temp file first so a failed write never leaves a
// truncated history behind.
func Persist(path string, lines []string) error {
	for _, line := range lines {
		if IsMultiline(line) {
			return ErrMultiline
		}
	}
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".dirshell-history-*")
	if err != nil {
		return fmt.Errorf("could not create temp history file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := func() {
		_ = os.Remove(tempPath)
	}

	writer := bufio.NewWriter(tempFile)
	for _, line := range lines {
		if _, err := writer.WriteString(line + "\n"); err != nil {
			_ = tempFile.Close()
			cleanup()
			return fmt.Errorf("could not write temp history file: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not write temp history file: %w", err)
	}
	if err := tempFile.Chmod(historyFileMode(path)); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not set history file permissions: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return fmt.Errorf("could not close temp history file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("could not atomically replace history file: %w", err)
	}
	return nil
}

// historyFileMode keeps the permissions of an existing history file; a new
// one gets the same mode Append would create it with.
func historyFileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
