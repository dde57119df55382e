package validator

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

var segmentSeparator = regexp.MustCompile(`;|&&|\|\||\||\n`)

// wrappers are prefixes that run the next word as the real command.
var wrappers = map[string]bool{
	"sudo": true, "doas": true, "env": true, "nohup": true, "nice": true,
	"time": true, "command": true, "exec": true, "xargs": true,
}

// commandSegments tokenizes each pipeline or list element of a shell command line.
// Segments that fail to tokenize are skipped; the regex rules still see them.
func commandSegments(command string) [][]string {
	var out [][]string
	for _, part := range segmentSeparator.Split(command, -1) {
		tokens, err := shlex.Split(part)
		if err != nil || len(tokens) == 0 {
			continue
		}
		out = append(out, stripWrappers(tokens))
	}
	return out
}

func stripWrappers(tokens []string) []string {
	for len(tokens) > 0 {
		name := filepath.Base(tokens[0])
		switch {
		case wrappers[name]:
			tokens = tokens[1:]
			for len(tokens) > 0 && strings.HasPrefix(tokens[0], "-") {
				tokens = tokens[1:]
			}
		case strings.Contains(tokens[0], "=") && !strings.HasPrefix(tokens[0], "-"):
			// VAR=value prefix
			tokens = tokens[1:]
		default:
			return tokens
		}
	}
	return tokens
}

// checkRecursiveRemove finds rm invocations that would recursively remove the
// filesystem root, the home directory, or the working directory and its parent.
func checkRecursiveRemove(tokens []string) error {
	if len(tokens) == 0 || filepath.Base(tokens[0]) != "rm" {
		return nil
	}
	args := tokens[1:]
	if !hasAnyFlag(args, "-r", "-R", "--recursive") {
		return nil
	}
	for _, arg := range args {
		if arg == "" || arg[0] == '-' {
			continue
		}
		switch filepath.Clean(arg) {
		case "/", "/*", ".", "..", "*", "~", "~/*", "$HOME", "${HOME}":
			return fmt.Errorf("recursive removal of %q", arg)
		}
	}
	return nil
}

func hasAnyFlag(args []string, flags ...string) bool {
	for _, arg := range args {
		if arg == "" || arg[0] != '-' {
			continue
		}
		for _, flag := range flags {
			if arg == flag {
				return true
			}
			// Short flag: "-r" matches "-rf" (combined)
			if len(flag) == 2 && flag[0] == '-' && flag[1] != '-' &&
				len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
				if strings.ContainsRune(arg[1:], rune(flag[1])) {
					return true
				}
			}
		}
	}
	return false
}
