package validator

import (
	"fmt"
	"regexp"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

// Pattern is a named regular expression in the rule library.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

func mustPatterns(pairs ...string) []Pattern {
	out := make([]Pattern, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Pattern{Name: pairs[i], Re: regexp.MustCompile(pairs[i+1])})
	}
	return out
}

// Rules is the pattern library the validator checks actions against.
type Rules struct {
	DangerousCommands []Pattern
	NetworkOperations []Pattern
	SuspiciousContent []Pattern
	SystemPrefixes    []string
	BinaryExtensions  []string
	ScriptExtensions  []string
}

func DefaultRules() Rules {
	return Rules{
		DangerousCommands: mustPatterns(
			"recursive delete of root", `\brm\s+-rf\s+/`,
			"privileged delete", `\bsudo\s+rm\s+`,
			"windows recursive delete", `\bdel\s+/[sq]\s+`,
			"disk format", `\bformat\s+[c-z]:`,
			"process kill-all", `\bkillall\s+`,
			"shutdown", `\bshutdown\s+`,
			"reboot", `\breboot\s+`,
			"halt", `\bhalt\s+`,
			"filesystem creation", `\bmkfs\.`,
			"partition editing", `\bfdisk\s+`,
			"raw device write", `\bdd\s+.*of=/dev/`,
			"raw device redirect", `>\s*/dev/s[dr]`,
			"world-writable root", `\bchmod\s+777\s+/`,
			"root ownership change", `\bchown\s+.*:\s*/`,
			"fork bomb", `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`,
			"privilege escalation", `(^|[;&|]\s*)(sudo|doas|pkexec)\s+`,
			"switch to root", `\bsu\s+(-\s*|root\b)`,
		),
		NetworkOperations: mustPatterns(
			"socket", `\bsocket\.`,
			"urllib", `\burllib`,
			"requests", `\brequests\.`,
			"http", `\bhttp\.`,
			"ftp", `\bftp\.`,
			"ssh", `\bssh\.`,
			"telnet", `\btelnet\.`,
			"smtp", `\bsmtplib\.`,
			"curl", `\bcurl\s+`,
			"wget", `\bwget\s+`,
		),
		SuspiciousContent: mustPatterns(
			"eval", `\beval\s*\(`,
			"exec", `\bexec\s*\(`,
			"dynamic import", `__import__\s*\(`,
			"reflection", `\b(getattr|setattr|delattr)\s*\(`,
			"compile", `\bcompile\s*\(`,
			"url fetch", `urllib\.request`,
			"subprocess", `\bsubprocess\.`,
			"os.system", `\bos\.system`,
			"os.popen", `\bos\.popen`,
			"shell=True", `shell\s*=\s*True`,
			"pickle", `pickle\.loads`,
			"marshal", `marshal\.loads`,
		),
		SystemPrefixes: []string{
			"/etc", "/usr", "/bin", "/sbin", "/boot", "/sys", "/proc", "/dev",
			"/var/log", "/tmp", "/root", "/System", "/Library", "/Applications",
			`C:\Windows`, `C:\Program Files`,
		},
		BinaryExtensions: []string{".exe", ".dll", ".so", ".dylib"},
		ScriptExtensions: []string{".py", ".js", ".sh", ".bat"},
	}
}

// WithDangerousPatterns returns a copy of r with extra dangerous command expressions.
func (r Rules) WithDangerousPatterns(exprs ...string) (Rules, error) {
	out := r
	out.DangerousCommands = append([]Pattern(nil), r.DangerousCommands...)
	for _, expr := range exprs {
		if expr == "" {
			continue
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return Rules{}, fmt.Errorf("compile dangerous pattern %q: %v: %w", expr, err, vigilErrors.ErrInvalidInput)
		}
		out.DangerousCommands = append(out.DangerousCommands, Pattern{Name: "custom: " + expr, Re: re})
	}
	return out, nil
}

func matchAll(patterns []Pattern, s string) []Pattern {
	var out []Pattern
	for _, p := range patterns {
		if p.Re.MatchString(s) {
			out = append(out, p)
		}
	}
	return out
}
