// Package ignore implements gitignore-style pattern matching for the
// repository walker. It covers the subset of the gitignore syntax that
// matters for indexing: wildcards, **, negation, directory-only patterns,
// and anchoring. Nested .gitignore files apply under their directory.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// rule is one compiled pattern.
type rule struct {
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
	anchored bool
	base     string
}

// Matcher holds compiled ignore patterns. Safe for concurrent Match calls.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

// New creates a Matcher preloaded with the patterns every code index skips:
// VCS metadata, dependency trees, and build output.
func New() *Matcher {
	m := &Matcher{}
	for _, p := range defaultPatterns {
		m.Add(p, "")
	}
	return m
}

var defaultPatterns = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	"__pycache__/",
	".venv/",
	"venv/",
	"*.min.js",
	"*.lock",
	"*.sum",
}

// Add compiles one pattern scoped under base ("" for repository root).
// Empty lines and comments are skipped.
func (m *Matcher) Add(pattern, base string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	r := rule{base: filepath.ToSlash(base)}

	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	} else if strings.Contains(pattern, "/") {
		// A slash anywhere anchors the pattern to the base directory.
		r.anchored = true
	}

	r.regex = compile(pattern)
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFile loads patterns from a .gitignore-style file, scoping them under
// base. Missing files are fine.
func (m *Matcher) AddFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.Add(scanner.Text(), base)
	}
	return scanner.Err()
}

// Match reports whether the repo-relative path should be ignored. Later
// rules win, so negations can re-include files.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if matchRule(path, isDir, r) {
			ignored = !r.negation
		}
	}
	return ignored
}

func matchRule(path string, isDir bool, r rule) bool {
	if r.base != "" {
		if path == r.base {
			path = filepath.Base(path)
		} else if strings.HasPrefix(path, r.base+"/") {
			path = strings.TrimPrefix(path, r.base+"/")
		} else {
			return false
		}
	}

	parts := strings.Split(path, "/")

	if r.anchored {
		if r.regex.MatchString(path) {
			return !r.dirOnly || isDir
		}
		// A matched directory ignores everything beneath it.
		for i := 1; i < len(parts); i++ {
			if r.regex.MatchString(strings.Join(parts[:i], "/")) {
				return true
			}
		}
		return false
	}

	// Unanchored: match the basename or any directory component.
	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) && (i < len(parts)-1 || isDir) {
				return true
			}
		}
		return false
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return r.regex.MatchString(path)
}

// compile translates a gitignore glob into an anchored regexp:
// ** crosses directories, * and ? stay within one component.
func compile(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")

	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i += 2
				// Swallow a following slash so "a/**/b" matches "a/b".
				if i < len(pattern) && pattern[i] == '/' {
					b.WriteString("/?")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
		i++
	}

	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
