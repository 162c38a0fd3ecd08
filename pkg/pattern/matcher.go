// Package pattern compiles the glob patterns the tarball builder uses to
// decide which files from a checked-out repository belong in
// package.tgz: the package.json "files" allowlist and .npmignore-style
// exclude rules, mirroring npm pack's own precedence (files allowlist
// wins when present; .npmignore/.gitignore otherwise).
package pattern

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher holds a compiled glob pattern plus whether it is a negated
// (re-include) rule, the way a .npmignore line prefixed with "!" negates
// an earlier exclusion.
type Matcher struct {
	pattern  glob.Glob
	negate   bool
	original string
}

// Compile builds a Matcher from one .npmignore/"files"-style pattern line.
// A leading "!" negates the rule; a trailing "/" is stripped before
// compiling since gitcache matches against file paths, not directory
// markers.
func Compile(patternLine string) (*Matcher, error) {
	line := strings.TrimSpace(patternLine)
	if line == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	negate := strings.HasPrefix(line, "!")
	if negate {
		line = line[1:]
	}
	line = strings.TrimSuffix(line, "/")

	g, err := glob.Compile(line, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", patternLine, err)
	}

	return &Matcher{pattern: g, negate: negate, original: patternLine}, nil
}

// Match reports whether path matches this rule's glob.
func (m *Matcher) Match(path string) bool {
	return m.pattern.Match(path)
}

// Negate reports whether this rule re-includes a previously excluded path.
func (m *Matcher) Negate() bool { return m.negate }

func (m *Matcher) String() string { return m.original }

// RuleSet is an ordered list of include/exclude rules. Later rules
// override earlier ones for a given path, matching .npmignore semantics.
type RuleSet struct {
	rules []*Matcher
}

// CompileRuleSet compiles every non-blank, non-comment line in lines into
// a RuleSet, in order.
func CompileRuleSet(lines []string) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		m, err := Compile(trimmed)
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, m)
	}
	return rs, nil
}

// Excluded reports whether path should be dropped from the tarball: the
// last matching rule wins, and a path excluded by default (no rule
// matches) is included.
func (rs *RuleSet) Excluded(path string) bool {
	excluded := false
	for _, rule := range rs.rules {
		if rule.Match(path) {
			excluded = !rule.Negate()
		}
	}
	return excluded
}

// Allowlist implements package.json's "files" field: unlike a RuleSet, a
// path is included only if at least one pattern matches it (or matches
// one of its parent directories, since "files" entries commonly name a
// directory to include it recursively).
type Allowlist struct {
	patterns []*Matcher
}

// CompileAllowlist compiles each files[] entry into a glob pattern.
func CompileAllowlist(entries []string) (*Allowlist, error) {
	al := &Allowlist{}
	for _, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		m, err := Compile(trimmed)
		if err != nil {
			return nil, err
		}
		al.patterns = append(al.patterns, m)
		// Also match everything under a named directory.
		dirAll, err := Compile(strings.TrimSuffix(trimmed, "/") + "/**")
		if err != nil {
			return nil, err
		}
		al.patterns = append(al.patterns, dirAll)
	}
	return al, nil
}

// Included reports whether path is named (directly or via a directory
// entry) by the allowlist.
func (al *Allowlist) Included(path string) bool {
	if al == nil || len(al.patterns) == 0 {
		return true
	}
	for _, p := range al.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// AlwaysIncluded lists the files npm always bundles regardless of the
// "files" allowlist or any ignore rule (package.json, README, LICENSE,
// the main/bin entry points are handled separately by the builder).
var AlwaysIncluded = []string{"package.json", "README", "README.md", "LICENSE", "LICENSE.md", "CHANGELOG.md"}

// IsAlwaysIncluded reports whether path is one of npm's unconditionally
// bundled files.
func IsAlwaysIncluded(path string) bool {
	for _, name := range AlwaysIncluded {
		if path == name {
			return true
		}
	}
	return false
}

// DefaultExcludes are the paths npm pack drops even with no .npmignore
// present (grounded on npm's own
// documented default ignore list).
var DefaultExcludes = []string{
	".git", ".git/**",
	"node_modules", "node_modules/**",
	".npmrc",
	"*.orig",
	".DS_Store",
}
