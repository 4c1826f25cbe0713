// Package safety keeps secrets out of dirshell.log. Command lines are
// scrubbed before they become log fields, and injected environment
// variables are logged by name only.
package safety

import (
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"
)

const (
	redacted = "<redacted>"

	// secretWords matches the part of a name that marks it as a credential.
	secretWords = `token|secret|password|passwd|credential|api[_-]?key|access[_-]?key|private[_-]?key`
	// secretValue is a bare, double-quoted or single-quoted shell word.
	secretValue = `([^\s"']+|"[^"]*"|'[^']*')`
)

var (
	secretKeyPattern = regexp.MustCompile(`(?i)(` + secretWords + `)`)

	// assignmentPattern finds NAME=value pairs the way env files and inline
	// shell assignments write them. Whether the value is hidden depends on
	// IsSecretKey(NAME).
	assignmentPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_.-]*)\s*=\s*` + secretValue)
)

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// spacedSecretRules cover secrets that follow their marker after a colon or
// whitespace instead of an equals sign.
var spacedSecretRules = []redactionRule{
	{
		pattern:     regexp.MustCompile(`(?i)\b(authorization\s*:\s*bearer)\s+([^\s"']+)`),
		replacement: `$1 ` + redacted,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b([a-z0-9_]*(?:` + secretWords + `)[a-z0-9_]*)\s*:\s*` + secretValue),
		replacement: `$1=` + redacted,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b([a-z0-9_-]*(?:` + secretWords + `)[a-z0-9_-]*)\b\s+` + secretValue),
		replacement: `$1 ` + redacted,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^\s:/@]+):([^\s@/]+)@`),
		replacement: `$1:` + redacted + `@`,
	},
	{
		pattern:     regexp.MustCompile(`(^|\s)(-[pkts])\s*=\s*` + secretValue),
		replacement: `$1$2=` + redacted,
	},
	{
		pattern:     regexp.MustCompile(`(^|\s)(-[pkts])\s+` + secretValue),
		replacement: `$1$2 ` + redacted,
	},
}

// IsSecretKey reports whether an environment variable or option name looks
// like it holds a credential.
func IsSecretKey(name string) bool {
	return secretKeyPattern.MatchString(name)
}

// RedactText scrubs credentials from a command line about to be logged:
// secret NAME=value assignments (including --flag=value), bearer headers,
// secret flags followed by their value, URL passwords and the short -p/-k/-t/-s
// options.
func RedactText(input string) string {
	redactedText := assignmentPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := assignmentPattern.FindStringSubmatch(match)
		if !IsSecretKey(parts[1]) {
			return match
		}
		return parts[1] + "=" + redacted
	})
	for _, rule := range spacedSecretRules {
		redactedText = rule.pattern.ReplaceAllString(redactedText, rule.replacement)
	}
	return redactedText
}

// CommandField is the log field for a command line.
func CommandField(line string) zap.Field {
	return zap.String("command", RedactText(line))
}

// ArgsField logs a process argument vector as one scrubbed line. The
// arguments are joined first so a secret split from its flag is still
// recognized.
func ArgsField(args []string) zap.Field {
	return zap.String("args", RedactText(strings.Join(args, " ")))
}

// EnvKeysField logs the names of injected variables, never their values.
// Secret-looking names are flagged so the log shows they were present.
func EnvKeysField(env map[string]string) zap.Field {
	keys := make([]string, 0, len(env))
	for key := range env {
		if IsSecretKey(key) {
			keys = append(keys, key+"(secret)")
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return zap.Strings("env_keys", keys)
}
