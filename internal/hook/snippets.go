package hook

import (
	"fmt"
	"strings"
)

var supportedShells = []string{"zsh", "bash", "fish"}

// SupportedShells lists the shells Snippet knows about.
func SupportedShells() []string {
	return append([]string(nil), supportedShells...)
}

// Snippet returns the init code for shell. Sourcing it records every
// command line through dirshell --from-hook.
func Snippet(shell string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(shell)) {
	case "zsh":
		return zshSnippet(), nil
	case "bash":
		return bashSnippet(), nil
	case "fish":
		return fishSnippet(), nil
	default:
		return "", fmt.Errorf("unsupported shell %q (supported: %s)", shell, strings.Join(supportedShells, ", "))
	}
}

func zshSnippet() string {
	return `function _dirshell_preexec() {
  DIRSHELL_LAST_COMMAND="$1"
}
function _dirshell_precmd() {
  if [ -n "$DIRSHELL_LAST_COMMAND" ]; then
    command dirshell --from-hook -- "$DIRSHELL_LAST_COMMAND" >/dev/null 2>&1
    DIRSHELL_LAST_COMMAND=""
  fi
}
autoload -Uz add-zsh-hook
add-zsh-hook preexec _dirshell_preexec
add-zsh-hook precmd _dirshell_precmd`
}

func bashSnippet() string {
	return `_DIRSHELL_LAST_HISTCMD="$HISTCMD"
_dirshell_prompt() {
  if [ "$HISTCMD" = "$_DIRSHELL_LAST_HISTCMD" ]; then
    return
  fi
  _DIRSHELL_LAST_HISTCMD="$HISTCMD"
  local last_command
  last_command=$(fc -ln -1 2>/dev/null)
  last_command="${last_command#"${last_command%%[![:space:]]*}"}"
  if [ -n "$last_command" ]; then
    command dirshell --from-hook -- "$last_command" >/dev/null 2>&1
  fi
}
case ";$PROMPT_COMMAND;" in
  *";_dirshell_prompt;"*) ;;
  *) PROMPT_COMMAND="_dirshell_prompt${PROMPT_COMMAND:+;$PROMPT_COMMAND}" ;;
esac`
}

func fishSnippet() string {
	return `function __dirshell_preexec --on-event fish_preexec
  set -g DIRSHELL_LAST_COMMAND $argv[1]
end
function __dirshell_postexec --on-event fish_postexec
  if test -n "$DIRSHELL_LAST_COMMAND"
    command dirshell --from-hook -- "$DIRSHELL_LAST_COMMAND" >/dev/null 2>&1
    set -e DIRSHELL_LAST_COMMAND
  end
end`
}
