package breeze

import (
	"fmt"
	"strings"
)

type segKind int

const (
	segLiteral segKind = iota
	segNamedWildcard
	segAnonWildcard
	segTail
)

type segment struct {
	kind segKind
	text string // literal text, or capture name (may be empty for anonymous/tail)
}

// compilePattern splits a path into segments, validating tail placement
// and capture-name uniqueness.
func compilePattern(pattern string) ([]segment, error) {
	p := strings.Trim(pattern, "/")
	if p == "" {
		return nil, nil
	}
	parts := strings.Split(p, "/")
	segs := make([]segment, 0, len(parts))
	seen := make(map[string]bool)

	for i, part := range parts {
		var s segment
		switch {
		case strings.HasPrefix(part, "*"):
			if i != len(parts)-1 {
				return nil, fmt.Errorf("breeze: tail segment %q must be last in pattern %q", part, pattern)
			}
			s = segment{kind: segTail, text: part[1:]}
		case part == ":":
			s = segment{kind: segAnonWildcard}
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if name == "" {
				s = segment{kind: segAnonWildcard}
				break
			}
			if seen[name] {
				return nil, fmt.Errorf("breeze: duplicate capture name %q in pattern %q", name, pattern)
			}
			seen[name] = true
			s = segment{kind: segNamedWildcard, text: name}
		default:
			s = segment{kind: segLiteral, text: part}
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// splitPath splits a request path into segments for matching, ignoring
// a single leading/trailing slash.
func splitPath(path string) []string {
	p := strings.Trim(path, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
