package webapp

import "strings"

// Match kinds, in increasing servlet selection priority.
const (
	matchNone = iota
	matchDefault
	matchExtension
	matchPrefix
	matchExact
)

// matchPattern matches path against a servlet URL pattern: "/" (default),
// "*.ext" (extension), "/a/b/*" (path prefix, also matching "/a/b") or an
// exact path. For prefix matches it also returns the matched prefix length.
func matchPattern(pattern, path string) (kind, prefixLen int) {
	switch {
	case pattern == "/":
		return matchDefault, 0
	case pattern == "/*":
		return matchPrefix, 0
	case strings.HasPrefix(pattern, "*."):
		if strings.HasSuffix(path, pattern[1:]) {
			return matchExtension, 0
		}
		return matchNone, 0
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "/*")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return matchPrefix, len(prefix)
		}
		return matchNone, 0
	case pattern == path:
		return matchExact, len(path)
	default:
		return matchNone, 0
	}
}

// matchRule matches path against a security rule pattern: a servlet URL
// pattern whose segments may be "{name}" placeholders matching any single
// segment.
func matchRule(pattern, path string) bool {
	if !strings.Contains(pattern, "{") {
		kind, _ := matchPattern(pattern, path)
		return kind != matchNone
	}

	pat := strings.Split(strings.Trim(pattern, "/"), "/")
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range pat {
		if p == "*" && i == len(pat)-1 {
			return len(segs) >= i
		}
		if i >= len(segs) {
			return false
		}
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if p != segs[i] {
			return false
		}
	}
	return len(segs) == len(pat)
}
