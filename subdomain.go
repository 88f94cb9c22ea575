package breeze

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// subdomainRouter holds the namespaces registered via Router.Subdomain
// and recognizes an incoming Host against them.
type subdomainRouter struct {
	entries []subdomainEntry
}

type subdomainEntry struct {
	labels []segment // compiled label pattern, left-to-right as written (e.g. "api.internal" -> ["api", "internal"])
	router *Router
}

func newSubdomainRouter() *subdomainRouter { return &subdomainRouter{} }

// register compiles pattern into labels and adds it to the namespace
// set. Patterns never contain a tail segment: subdomain label counts
// are fixed.
func (s *subdomainRouter) register(pattern string, r *Router) error {
	labels, err := compileSubdomainLabels(pattern)
	if err != nil {
		return err
	}
	for _, e := range s.entries {
		if labelsConflict(e.labels, labels) {
			return fmt.Errorf("breeze: subdomain pattern %q ties with an already-registered pattern in the same class", pattern)
		}
	}
	s.entries = append(s.entries, subdomainEntry{labels: labels, router: r})
	return nil
}

// labelsConflict reports whether a and b could both match the same
// host with no way for recognize to break the tie: same label count,
// same class (static vs parametric), and no literal position where
// they definitively rule each other out.
func labelsConflict(a, b []segment) bool {
	if len(a) != len(b) {
		return false
	}
	if isStaticPattern(a) != isStaticPattern(b) {
		return false // static always beats parametric, never a tie
	}
	for i := range a {
		if a[i].kind == segLiteral && b[i].kind == segLiteral {
			if !strings.EqualFold(a[i].text, b[i].text) {
				return false
			}
		}
	}
	return true
}

// compileSubdomainLabels splits a dot-separated subdomain pattern into
// literal and named-wildcard segments; unlike compilePattern, tail
// segments are rejected.
func compileSubdomainLabels(pattern string) ([]segment, error) {
	parts := strings.Split(strings.Trim(pattern, "."), ".")
	segs := make([]segment, 0, len(parts))
	seen := make(map[string]bool)
	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, "*"):
			return nil, fmt.Errorf("breeze: subdomain pattern %q cannot contain a tail segment", pattern)
		case part == ":":
			segs = append(segs, segment{kind: segAnonWildcard})
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if seen[name] {
				return nil, fmt.Errorf("breeze: duplicate capture name %q in subdomain pattern %q", name, pattern)
			}
			seen[name] = true
			segs = append(segs, segment{kind: segNamedWildcard, text: name})
		default:
			segs = append(segs, segment{kind: segLiteral, text: part})
		}
	}
	return segs, nil
}

// subdomainMatch is the outcome of recognizing one Host against the
// registered namespaces.
type subdomainMatch struct {
	params     map[string]string
	middleware []Middleware
	table      *node
}

// recognize strips the registrable domain (eTLD+1) from host and
// matches the remaining labels against registered namespaces. Hosts at
// the apex of their registrable domain (no subdomain labels) never
// match any namespace and fall straight through to the main table.
// Among namespaces whose labels match, an all-literal pattern always
// wins over one containing a wildcard, and within the same class the
// pattern with the most labels (the most specific match) wins.
func (s *subdomainRouter) recognize(host string) (*subdomainMatch, bool) {
	if len(s.entries) == 0 {
		return nil, false
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || strings.EqualFold(registrable, host) {
		return nil, false
	}
	sub := strings.TrimSuffix(host, "."+registrable)
	if sub == "" {
		return nil, false
	}
	labels := strings.Split(sub, ".")

	var best *subdomainEntry
	var bestParams map[string]string
	bestStatic := false
	bestLen := -1

	for i := range s.entries {
		e := &s.entries[i]
		params, ok := matchLabels(e.labels, labels)
		if !ok {
			continue
		}
		static := isStaticPattern(e.labels)
		if best == nil ||
			(static && !bestStatic) ||
			(static == bestStatic && len(e.labels) > bestLen) {
			best = e
			bestParams = params
			bestStatic = static
			bestLen = len(e.labels)
		}
	}
	if best == nil {
		return nil, false
	}
	return &subdomainMatch{params: bestParams, middleware: best.router.middleware, table: best.router.localTable}, true
}

func isStaticPattern(labels []segment) bool {
	for _, l := range labels {
		if l.kind != segLiteral {
			return false
		}
	}
	return true
}

func matchLabels(pattern []segment, labels []string) (map[string]string, bool) {
	if len(pattern) != len(labels) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range pattern {
		switch seg.kind {
		case segLiteral:
			if !strings.EqualFold(seg.text, labels[i]) {
				return nil, false
			}
		case segNamedWildcard:
			if params == nil {
				params = make(map[string]string)
			}
			params[seg.text] = labels[i]
		case segAnonWildcard:
			// matches, captures nothing
		default:
			return nil, false
		}
	}
	return params, true
}
