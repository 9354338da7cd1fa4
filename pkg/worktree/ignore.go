package worktree

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// IgnoreFile is the per-repository ignore file at the working tree root.
const IgnoreFile = ".pocketignore"

// Matcher decides which working-tree paths are ignored. Rules follow the
// familiar ignore-file syntax: "#" comments, "!" negation, a trailing "/"
// for directory-only rules, "**" globstars, and last match wins.
type Matcher struct {
	metaDir  string
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool // pattern contains a slash, so match against full path
	regex    *regexp.Regexp
}

// NewMatcher builds a Matcher from ignore-file lines. metaDir is always
// ignored.
func NewMatcher(metaDir string, lines ...string) *Matcher {
	m := &Matcher{metaDir: metaDir}
	for _, line := range lines {
		if p := parseLine(line); p != nil {
			m.patterns = append(m.patterns, *p)
		}
	}
	return m
}

// LoadMatcher reads IgnoreFile from the root of fs, if present, and appends
// its rules after extra.
func LoadMatcher(fs billy.Filesystem, metaDir string, extra []string) (*Matcher, error) {
	lines := append([]string(nil), extra...)
	data, err := util.ReadFile(fs, IgnoreFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	return NewMatcher(metaDir, lines...), nil
}

// parseLine returns nil for blank lines and comments.
func parseLine(line string) *ignorePattern {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := &ignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		line = strings.TrimLeft(line, "/")
		p.anchored = true
	}
	if line == "" {
		return nil
	}
	if strings.Contains(line, "/") {
		p.anchored = true
	}
	p.pattern = line
	if strings.Contains(line, "**") {
		re, err := regexp.Compile(globToRegex(line))
		if err != nil {
			return nil
		}
		p.regex = re
	}
	return p
}

// Ignored reports whether the repo-relative, slash-separated path p is
// ignored. A path under an ignored directory is ignored.
func (m *Matcher) Ignored(p string, isDir bool) bool {
	p = strings.Trim(path.Clean(p), "/")
	if p == "." || p == "" {
		return false
	}
	if m.metaDir != "" && (p == m.metaDir || strings.HasPrefix(p, m.metaDir+"/")) {
		return true
	}
	for i := 0; i < len(p); i++ {
		if p[i] == '/' && m.match(p[:i], true) {
			return true
		}
	}
	return m.match(p, isDir)
}

func (m *Matcher) match(p string, isDir bool) bool {
	ignored := false
	for i := range m.patterns {
		if m.patterns[i].matches(p, isDir) {
			ignored = !m.patterns[i].negated
		}
	}
	return ignored
}

func (p *ignorePattern) matches(target string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}
	if p.anchored {
		return p.match(target)
	}
	return p.match(path.Base(target))
}

func (p *ignorePattern) match(target string) bool {
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	matched, _ := path.Match(p.pattern, target)
	return matched
}

func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			if i+2 < len(pattern) && pattern[i+2] == '/' {
				// Zero or more leading directories.
				b.WriteString("(?:.*/)?")
				i += 2
			} else {
				b.WriteString(".*")
				i++
			}
		case ch == '*':
			b.WriteString("[^/]*")
		case ch == '?':
			b.WriteString("[^/]")
		default:
			if strings.ContainsRune(`.+()|[]{}^$\`, rune(ch)) {
				b.WriteByte('\\')
			}
			b.WriteByte(ch)
		}
	}
	b.WriteString("$")
	return b.String()
}
