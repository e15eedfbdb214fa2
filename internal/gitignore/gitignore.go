// Package gitignore matches slash-separated relative paths against patterns in
// gitignore syntax (https://git-scm.com/docs/gitignore). The scanner uses it for
// configured exclude globs and, when enabled, for .gitignore files in the tree.
//
//	m := gitignore.New("*.log", "!keep.log", "/build/")
//	m.Match("logs/error.log", false) // true
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"
)

// Matcher is a thread-safe, ordered rule list. Later rules win, so a negated
// pattern re-includes what an earlier one excluded.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool

	// base limits the rule to paths under a directory (nested .gitignore).
	base string
}

// New returns a Matcher holding the given patterns.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

// Add appends a root-level pattern. Blank lines and comments are ignored.
func (m *Matcher) Add(pattern string) {
	m.AddWithBase(pattern, "")
}

// AddWithBase appends a pattern that applies only below base.
func (m *Matcher) AddWithBase(pattern, base string) {
	r, ok := parseRule(pattern, strings.Trim(base, "/"))
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFile reads every line of a .gitignore file as a pattern under base.
func (m *Matcher) AddFile(filename, base string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether p is ignored. p is relative to the matcher's root.
func (m *Matcher) Match(p string, isDir bool) bool {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if r.matches(p, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func parseRule(line, base string) (rule, bool) {
	// "\ " at the end keeps a trailing space.
	keepSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	r := rule{base: base}
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}
	if keepSpace && strings.HasSuffix(line, `\`) {
		line = strings.TrimSuffix(line, `\`) + " "
	}

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	// An inner slash anchors too: "doc/frotz" means "/doc/frotz".
	if strings.Contains(line, "/") && !strings.HasPrefix(line, "*") {
		r.anchored = true
	}
	if line == "" {
		return rule{}, false
	}

	re, err := regexp.Compile("^" + translate(line) + "$")
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

func (r rule) matches(p string, isDir bool) bool {
	if r.base != "" {
		switch {
		case p == r.base:
			p = path.Base(p)
		case strings.HasPrefix(p, r.base+"/"):
			p = strings.TrimPrefix(p, r.base+"/")
		default:
			return false
		}
	}

	parts := strings.Split(p, "/")
	last := len(parts) - 1

	if r.anchored {
		if r.re.MatchString(p) {
			return !r.dirOnly || isDir
		}
		// Files below an anchored directory.
		if r.dirOnly {
			for i := 0; i < last; i++ {
				if r.re.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.re.MatchString(part) {
				return i < last || isDir
			}
		}
		return false
	}

	if r.re.MatchString(p) {
		return true
	}
	for _, part := range parts {
		if r.re.MatchString(part) {
			return true
		}
	}
	return false
}

// translate converts one glob to a regular expression body.
func translate(glob string) string {
	var sb strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				if i+2 < len(glob) && glob[i+2] == '/' {
					sb.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				if i == 0 || glob[i-1] == '/' {
					sb.WriteString(".*")
					i++
					continue
				}
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			sb.WriteString(glob[i : i+end+2])
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(glob[i])))
			} else {
				sb.WriteString(`\\`)
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
