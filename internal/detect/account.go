package detect

import "strings"

// Account is one candidate identity extracted from the thread.
type Account struct {
	Handle      string
	DisplayName string
	Verified    bool
}

const maxHandleLen = 15

// profile link paths that are site navigation, never user handles
var reservedPaths = map[string]bool{
	"home":          true,
	"explore":       true,
	"notifications": true,
	"messages":      true,
	"search":        true,
	"settings":      true,
	"compose":       true,
	"i":             true,
}

// NormalizeHandle canonicalizes a raw handle for dedup: trimmed, lowered,
// with a single leading @. Returns "" when the input is not a plausible
// handle.
func NormalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	if h == "" || len(h) > maxHandleLen {
		return ""
	}
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return ""
		}
	}
	return "@" + strings.ToLower(h)
}

// HandleFromHref derives a canonical handle from a profile link. Only
// single-segment profile roots qualify; status links, navigation paths and
// anything with extra segments yield "".
func HandleFromHref(href string) string {
	s := href
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		j := strings.Index(s, "/")
		if j < 0 {
			return ""
		}
		s = s[j:]
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "/")
	if s == "" || strings.Contains(s, "/") {
		return ""
	}
	if reservedPaths[strings.ToLower(s)] {
		return ""
	}
	return NormalizeHandle(s)
}
