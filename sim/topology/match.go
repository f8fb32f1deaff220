package topology

import (
	"path"
	"strings"
)

// MatchPattern reports whether the glob pattern matches name in full.
// Names are dot-separated; '*' matches within a single segment and '?'
// a single character, so "device1" never matches "device10" and
// "*.device1" never matches "net.sub.device1".
func MatchPattern(pattern, name string) bool {
	ok, err := path.Match(strings.ReplaceAll(pattern, ".", "/"), strings.ReplaceAll(name, ".", "/"))
	return err == nil && ok
}

// Matches reports whether pattern selects n. Patterns are matched against the
// fully-qualified path; a pattern without a dot is also tried against the
// bare node name.
func (n Node) Matches(pattern string) bool {
	if MatchPattern(pattern, n.FullPath) {
		return true
	}
	return !strings.Contains(pattern, ".") && MatchPattern(pattern, n.Name)
}
