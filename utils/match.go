// Package utils holds the route pattern matcher used by guard tables.
package utils

import "strings"

// MatchRoute reports whether route ("METHOD /path") matches pattern.
// Patterns may use:
//   - ':name' to match exactly one path segment,
//   - '*' to match one segment, or everything that follows when last,
//   - '*' as the method to match any method.
func MatchRoute(route, pattern string) bool {
	_, ok := RouteParams(route, pattern)
	return ok
}

// RouteParams matches route against pattern and returns the values bound to
// ':name' segments.
func RouteParams(route, pattern string) (map[string]string, bool) {
	rm, rp, rok := strings.Cut(route, " ")
	pm, pp, pok := strings.Cut(pattern, " ")
	if rok != pok {
		return nil, false
	}
	if !pok {
		rp, pp = route, pattern
	} else if pm != "*" && !strings.EqualFold(pm, rm) {
		return nil, false
	}
	return matchSegments(split(rp), split(pp))
}

func matchSegments(value, pattern []string) (map[string]string, bool) {
	var params map[string]string
	for i, p := range pattern {
		if p == "*" && i == len(pattern)-1 {
			return params, len(value) >= i
		}
		if i >= len(value) {
			return nil, false
		}
		switch {
		case p == "*":
		case strings.HasPrefix(p, ":"):
			if value[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[p[1:]] = value[i]
		case p != value[i]:
			return nil, false
		}
	}
	return params, len(value) == len(pattern)
}

// Specificity ranks patterns so that the most literal one wins when several
// match: literal segments count 2, parameters and wildcards 1.
func Specificity(pattern string) int {
	if _, p, ok := strings.Cut(pattern, " "); ok {
		pattern = p
	}
	score := 0
	for _, s := range split(pattern) {
		switch {
		case s == "*" || strings.HasPrefix(s, ":"):
			score++
		default:
			score += 2
		}
	}
	return score
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
