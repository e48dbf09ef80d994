package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is read from the root of each watched drop zone.
const IgnoreFileName = ".sftignore"

// builtinRules keep the watcher away from its own bookkeeping: the ignore
// file itself, half-written copies, and the symlink projection's temp links.
var builtinRules = []string{IgnoreFileName, "*.sft-tmp", ".sft-copy-*", "*.part", "*.crdownload", "~$*"}

type rule struct {
	glob    string
	negate  bool // "!pat" re-includes what an earlier rule excluded
	dirOnly bool // "pat/" matches any parent directory segment
	anchor  bool // contains '/', matched against the whole relative path
}

// IgnoreMatcher decides which drop-zone entries the watcher skips. Rules are
// evaluated in order and the last matching rule wins, so a later "!keep.log"
// overrides an earlier "*.log".
type IgnoreMatcher struct {
	rules []rule
}

// NewIgnoreMatcher compiles rules. Blank lines and '#' comments are skipped,
// as are globs filepath.Match rejects.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		r, ok := parseRule(line)
		if ok {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

func parseRule(line string) (rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}
	var r rule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return rule{}, false
	}
	if _, err := path.Match(line, ""); err != nil {
		return rule{}, false
	}
	r.glob = line
	r.anchor = strings.Contains(line, "/")
	return r, true
}

func (r rule) matches(rel string) bool {
	if r.dirOnly {
		dirs := strings.Split(path.Dir(rel), "/")
		for i := range dirs {
			candidate := dirs[i]
			if r.anchor {
				candidate = strings.Join(dirs[:i+1], "/")
			}
			if ok, _ := path.Match(r.glob, candidate); ok {
				return true
			}
		}
		return false
	}
	if r.anchor {
		ok, _ := path.Match(r.glob, rel)
		return ok
	}
	ok, _ := path.Match(r.glob, path.Base(rel))
	return ok
}

// Match reports whether rel, a path relative to the drop-zone root, is
// ignored.
func (m *IgnoreMatcher) Match(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	ignored := false
	for _, r := range m.rules {
		if r.matches(rel) {
			ignored = !r.negate
		}
	}
	return ignored
}

// Len returns the number of compiled rules.
func (m *IgnoreMatcher) Len() int { return len(m.rules) }

// LoadIgnoreMatcher builds the matcher for a drop zone from the built-in
// rules, the configured ones and <root>/.sftignore, in that order.
func LoadIgnoreMatcher(root string, configured []string) (*IgnoreMatcher, error) {
	lines := append(append([]string(nil), builtinRules...), configured...)
	fromFile, err := ReadIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(append(lines, fromFile...)), nil
}

// ReadIgnoreFile returns the raw lines of an ignore file. A missing file
// yields no lines.
func ReadIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return lines, nil
}
