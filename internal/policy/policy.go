// Package policy decides, without side effects, whether a proposed action may
// proceed to the approval prompt. A deny verdict is terminal: the action is
// never shown to the user and never executed.
package policy

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"goq/internal/operation"
)

// Verdict is the outcome of evaluating one action.
type Verdict struct {
	Allowed bool
	Reason  string
}

func allow() Verdict { return Verdict{Allowed: true} }

func deny(format string, args ...any) Verdict {
	return Verdict{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Policy holds the static ruleset. Evaluate is a pure function of the action
// and this ruleset; building a Policy is the only place configuration enters.
type Policy struct {
	projectRoot   string
	protectedDirs []string
	protectedPats []string // doublestar patterns from configuration

	deniedSubstrings []string
	deniedPatterns   []*regexp.Regexp
}

// Option configures a Policy.
type Option func(*Policy)

// WithProtectedPatterns adds configured glob patterns (doublestar syntax)
// whose matches are write-protected.
func WithProtectedPatterns(patterns []string) Option {
	return func(p *Policy) { p.protectedPats = append(p.protectedPats, patterns...) }
}

// WithDeniedCommands adds configured substrings to the shell denylist.
func WithDeniedCommands(substrings []string) Option {
	return func(p *Policy) { p.deniedSubstrings = append(p.deniedSubstrings, substrings...) }
}

// WithProtectedDirs adds directories to the write-protected set, on top of
// the built-in system prefixes. The tool's own config dir belongs here.
func WithProtectedDirs(dirs []string) Option {
	return func(p *Policy) {
		for _, d := range dirs {
			if d != "" {
				p.protectedDirs = append(p.protectedDirs, filepath.Clean(d))
			}
		}
	}
}

// New creates a Policy rooted at the user's designated project directory.
func New(projectRoot string, opts ...Option) *Policy {
	p := &Policy{
		projectRoot: filepath.Clean(projectRoot),
		protectedDirs: []string{
			"/etc", "/boot", "/bin", "/sbin", "/lib", "/lib64",
			"/usr", "/sys", "/proc", "/dev", "/var",
			"/System", "/Library", // macOS
		},
		deniedSubstrings: []string{
			// Recursive deletion of root-level paths
			"rm -rf /",
			"rm -rf /*",
			"rm -rf ~",
			"rm -rf $home",
			"rm -rf ${home}",
			"rm -fr /",
			"rm -fr /*",
			// Disk destruction
			"mkfs.",
			"mkfs ",
			"dd if=/dev/zero of=/dev/",
			"dd if=/dev/urandom of=/dev/",
			"> /dev/sda",
			"> /dev/nvme",
			// Privilege elevation
			"sudo ",
			"sudo\t",
			"doas ",
			"pkexec ",
			// Raw networking utilities; retrieval must go through fetch
			"nc ",
			"ncat ",
			"netcat ",
			"telnet ",
			"/dev/tcp/",
			"/dev/udp/",
			// Permission attacks
			"chmod -r 777 /",
			"chmod 777 /",
			"chown -r root /",
		},
		deniedPatterns: []*regexp.Regexp{
			// rm -rf with flag permutations against / or $VAR
			regexp.MustCompile(`\brm\s+(-[rRf]+\s+)+/(\s|$|\*)`),
			regexp.MustCompile(`\brm\s+(-[rRf]+\s+)+\$`),
			// su to another user
			regexp.MustCompile(`(^|[;&|]\s*)su\b`),
			// fork bombs
			regexp.MustCompile(`:\s*\(\s*\)\s*\{`),
			// download piped into a shell
			regexp.MustCompile(`(?i)\b(wget|curl)\b[^|]*\|\s*(ba|z)?sh\b`),
			// curl/wget themselves count as raw network utilities
			regexp.MustCompile(`(?i)^\s*(wget|curl|ssh|scp|ftp)\b`),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate classifies one action against the ruleset. No side effects,
// deterministic for a given Policy.
func (p *Policy) Evaluate(action *operation.Action) Verdict {
	switch action.Kind {
	case operation.KindShell:
		return p.evaluateShell(action.Command)
	case operation.KindWrite:
		return p.evaluateWrite(action.Path)
	case operation.KindFetch:
		return p.evaluateFetch(action.URL)
	case operation.KindRead, operation.KindToolCall:
		// Reads are rejected by the executor on content inspection, not
		// here; tool calls are vetted by the human approval step.
		return allow()
	default:
		return deny("unknown operation kind")
	}
}

func (p *Policy) evaluateShell(command string) Verdict {
	if command == "" {
		return deny("empty command")
	}
	normalized := strings.ToLower(command)
	for _, substr := range p.deniedSubstrings {
		if strings.Contains(normalized, substr) {
			return deny("command matches denied pattern %q", strings.TrimSpace(substr))
		}
	}
	for _, re := range p.deniedPatterns {
		if re.MatchString(command) {
			return deny("command matches denied pattern %q", re.String())
		}
	}
	return allow()
}

func (p *Policy) evaluateWrite(path string) Verdict {
	resolved, err := ResolvePath(path)
	if err != nil {
		return deny("cannot resolve path: %v", err)
	}

	// Anything under the project root the user designated is writable.
	if isPathWithin(resolved, p.projectRoot) {
		return allow()
	}

	for _, dir := range p.protectedDirs {
		if isPathWithin(resolved, dir) {
			return deny("path %s is under protected prefix %s", resolved, dir)
		}
	}
	for _, pat := range p.protectedPats {
		if ok, _ := doublestar.PathMatch(pat, resolved); ok {
			return deny("path %s matches protected pattern %q", resolved, pat)
		}
	}
	return allow()
}

func (p *Policy) evaluateFetch(rawURL string) Verdict {
	u, err := url.Parse(rawURL)
	if err != nil {
		return deny("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return deny("scheme %q is not allowed, only http and https", u.Scheme)
	}
	if u.Host == "" {
		return deny("URL has no host")
	}
	return allow()
}

// ResolvePath normalizes a path for policy checks: absolute, cleaned of "..",
// and with symlinks evaluated so a link into a protected tree cannot slip
// through. For paths that do not exist yet, the deepest existing ancestor is
// resolved and the remainder re-joined.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("null byte in path")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	// Walk up to the deepest existing ancestor.
	remainder := []string{}
	dir := abs
	for {
		parent := filepath.Dir(dir)
		remainder = append([]string{filepath.Base(dir)}, remainder...)
		resolvedParent, perr := filepath.EvalSymlinks(parent)
		if perr == nil {
			return filepath.Join(append([]string{resolvedParent}, remainder...)...), nil
		}
		if !os.IsNotExist(perr) {
			return "", perr
		}
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

func isPathWithin(target, base string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
