// Package ignore decides which files of a scanned tree are left out, using
// gitignore-style rules.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// File is the per-tree ignore file read from the scan root.
const File = ".binmapignore"

// defaultRules skip tool state and files that never hold loadable objects.
var defaultRules = []string{
	".git/",
	".binmap/",
	".binmap.yaml",
	File,
	"*.debug",
	"*.h",
	"*.c",
	"*.o.d",
	"__pycache__/",
}

// pattern is one compiled rule line.
type pattern struct {
	re *regexp.Regexp

	negate bool
	// dirOnly rules (trailing "/") match directories and everything below.
	dirOnly bool
	// anchored rules (leading "/") match from the tree root only.
	anchored bool
	// nested rules contain a "/" and match a run of path segments; others
	// match a single segment.
	nested bool
}

// Matcher applies rules in order; the last matching rule decides.
type Matcher struct {
	patterns []pattern
}

// NewMatcher compiles the default rules followed by userRules. Blank lines,
// comments and malformed globs are dropped.
func NewMatcher(userRules []string) *Matcher {
	m := &Matcher{patterns: make([]pattern, 0, len(defaultRules)+len(userRules))}
	for _, lines := range [][]string{defaultRules, userRules} {
		for _, line := range lines {
			if p, ok := compile(line); ok {
				m.patterns = append(m.patterns, p)
			}
		}
	}
	return m
}

// ShouldIgnore reports whether relPath, relative to the tree root, is
// excluded.
func (m *Matcher) ShouldIgnore(relPath string, isDir bool) bool {
	segments := splitPath(relPath)
	if len(segments) == 0 {
		return false
	}
	ignored := false
	for _, p := range m.patterns {
		if p.matches(segments, isDir) {
			ignored = !p.negate
		}
	}
	return ignored
}

// LoadRules reads the ignore file under rootPath. A missing file yields no
// rules.
func LoadRules(rootPath string) ([]string, error) {
	f, err := os.Open(filepath.Join(rootPath, File))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", File, err)
	}
	defer f.Close()

	rules := make([]string, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			rules = append(rules, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", File, err)
	}
	return rules, nil
}

func compile(line string) (pattern, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return pattern{}, false
	}

	var p pattern
	line, p.negate = strings.CutPrefix(line, "!")
	line, p.anchored = strings.CutPrefix(line, "/")
	line, p.dirOnly = strings.CutSuffix(line, "/")
	line = strings.Join(splitPath(line), "/")
	if line == "" {
		return pattern{}, false
	}
	p.nested = strings.Contains(line, "/")

	re, err := regexp.Compile("^" + globExpr(line) + "$")
	if err != nil {
		return pattern{}, false
	}
	p.re = re
	return p, true
}

// matches tests the rule against every span of segments it may cover.
// Directory rules try each directory on the path; other rules only spans
// ending at the last segment.
func (p pattern) matches(segments []string, isDir bool) bool {
	lastEnd, firstEnd := len(segments), len(segments)
	if p.dirOnly {
		firstEnd = 1
		if !isDir {
			lastEnd--
		}
	}

	for end := firstEnd; end <= lastEnd; end++ {
		switch {
		case p.anchored:
			if p.re.MatchString(strings.Join(segments[:end], "/")) {
				return true
			}
		case p.nested:
			for start := 0; start < end; start++ {
				if p.re.MatchString(strings.Join(segments[start:end], "/")) {
					return true
				}
			}
		default:
			if p.re.MatchString(segments[end-1]) {
				return true
			}
		}
	}
	return false
}

// globExpr translates "**", "*" and "?" to a regular expression; "*" and "?"
// stop at "/".
func globExpr(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		switch ch := glob[i]; ch {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	return b.String()
}

func splitPath(path string) []string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}
