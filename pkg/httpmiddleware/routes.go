package httpmiddleware

import (
	"net/http"
	"strings"
)

// RouteFinder resolves a request to the route pattern that serves it.
// Logs and metrics label requests by pattern instead of raw URL, which
// keeps the label set bounded when paths carry ids.
type RouteFinder interface {
	FindRoute(r *http.Request) (route string, ok bool)
}

// NewRouteFinder builds a RouteFinder from patterns in net/http ServeMux
// form, e.g. "GET /api/v1/orders/{id}/tracking". A pattern without a method
// prefix matches any method. Segments wrapped in braces match any single
// path segment. The returned route label is the path part of the pattern.
func NewRouteFinder(patterns ...string) RouteFinder {
	table := make(routeTable, 0, len(patterns))
	for _, p := range patterns {
		method, path, ok := strings.Cut(p, " ")
		if !ok {
			method, path = "", p
		}
		table = append(table, routePattern{
			method:   method,
			segments: splitPath(path),
			label:    path,
		})
	}
	return table
}

type routePattern struct {
	method   string
	segments []string
	label    string
}

type routeTable []routePattern

func (t routeTable) FindRoute(r *http.Request) (string, bool) {
	segs := splitPath(r.URL.Path)
	for _, p := range t {
		if p.method != "" && p.method != r.Method {
			continue
		}
		if matchSegments(p.segments, segs) {
			return p.label, true
		}
	}
	return "", false
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
