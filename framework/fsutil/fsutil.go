// Package fsutil provides path helpers shared by unit discovery and scope
// ownership checks.
//
// All paths handled here are slash separated. Prefix checks are per path
// segment, so "src/dao" contains "src/dao/user.go" but not "src/daox.go".
package fsutil

import (
	"path"
	"path/filepath"
	"strings"
)

// Clean returns p in slash form, cleaned, without a trailing separator.
// The empty string stays empty.
func Clean(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(filepath.ToSlash(p))
}

// Within reports whether p equals dir or lies beneath it.
func Within(p, dir string) bool {
	p, dir = Clean(p), Clean(dir)
	if dir == "" || p == "" {
		return false
	}
	if p == dir || dir == "." {
		return true
	}
	if dir == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, dir+"/")
}

// Rel returns target relative to base in slash form. When target is not
// below base the result starts with "..".
func Rel(base, target string) string {
	if base == "" {
		return Clean(target)
	}
	rel, err := filepath.Rel(filepath.FromSlash(base), filepath.FromSlash(target))
	if err != nil {
		return Clean(target)
	}
	return Clean(rel)
}

// Filter applies exclude-then-include prefix rules. A path under an excluded
// prefix is dropped unless it also matches an include prefix.
//
// Relative prefixes are matched against the project-relative path, absolute
// ones against the absolute path.
type Filter struct {
	Include []string
	Exclude []string
}

// Admit evaluates the rules for one path. def is the outcome when neither
// list matches.
func (f Filter) Admit(abs, rel string, def bool) bool {
	admit := def
	for _, p := range f.Exclude {
		if matchPrefix(p, abs, rel) {
			admit = false
			break
		}
	}
	for _, p := range f.Include {
		if matchPrefix(p, abs, rel) {
			admit = true
			break
		}
	}
	return admit
}

// Empty reports whether the filter has no rules.
func (f Filter) Empty() bool { return len(f.Include) == 0 && len(f.Exclude) == 0 }

func matchPrefix(prefix, abs, rel string) bool {
	prefix = Clean(prefix)
	if prefix == "" {
		return false
	}
	if path.IsAbs(prefix) {
		return Within(abs, prefix)
	}
	if strings.HasPrefix(rel, "..") {
		return false
	}
	return Within(rel, prefix)
}
