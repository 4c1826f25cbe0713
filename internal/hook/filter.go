// Package hook wires dirshell into interactive shells so that commands typed
// in a directory with a history file are recorded without typing dirshell.
package hook

import (
	"path/filepath"
	"strings"
)

// ShouldIgnore reports whether a command reported by a shell hook must not
// be recorded. Blank lines, multi-line commands and dirshell's own
// invocations are ignored.
func ShouldIgnore(command string) bool {
	if strings.ContainsAny(command, "\r\n") {
		return true
	}
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return true
	}

	fields := strings.Fields(trimmed)
	first := primaryCommandToken(fields)
	first = strings.ToLower(filepath.Base(first))
	first = strings.TrimSuffix(first, ".exe")
	if first == "dirshell" {
		return true
	}

	low := strings.ToLower(trimmed)
	return strings.Contains(low, "go run ./cmd/dirshell")
}

// primaryCommandToken skips leading env assignments and wrapper commands
// such as env, sudo and nohup.
func primaryCommandToken(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	idx := 0
	for idx < len(fields) {
		token := strings.TrimSpace(fields[idx])
		if token == "" {
			idx++
			continue
		}
		if isEnvAssignmentToken(token) {
			idx++
			continue
		}
		base := strings.ToLower(filepath.Base(token))
		switch base {
		case "env":
			idx = skipWrapperFlags(fields, idx+1, true)
			continue
		case "sudo", "command", "time", "nohup", "builtin", "exec":
			idx = skipWrapperFlags(fields, idx+1, false)
			continue
		default:
			return token
		}
	}
	return fields[0]
}

func skipWrapperFlags(fields []string, idx int, allowAssignments bool) int {
	for idx < len(fields) {
		next := strings.TrimSpace(fields[idx])
		if next == "" || strings.HasPrefix(next, "-") || (allowAssignments && isEnvAssignmentToken(next)) {
			idx++
			continue
		}
		break
	}
	return idx
}

func isEnvAssignmentToken(token string) bool {
	if strings.HasPrefix(token, "-") {
		return false
	}
	eq := strings.IndexRune(token, '=')
	if eq <= 0 {
		return false
	}
	return strings.IndexAny(token[:eq], "/\\") == -1
}
