package session

import (
	"strings"
	"time"
)

// RouteClass groups routes that share a timeout.
type RouteClass string

const (
	RouteDefault   RouteClass = "default"
	RouteSensitive RouteClass = "sensitive"
	RouteExtended  RouteClass = "extended"
)

// RoutePolicy maps a route path to its inactivity timeout. It has no state beyond its
// configuration, so Classify and TimeoutFor are pure.
type RoutePolicy struct {
	Default   time.Duration
	Sensitive time.Duration
	Extended  time.Duration

	SensitivePrefixes []string
	ExtendedPrefixes  []string
}

// Classify returns the route class for path. Sensitive prefixes win over extended ones.
func (p RoutePolicy) Classify(path string) RouteClass {
	path = normalizePath(path)
	if matchesAny(path, p.SensitivePrefixes) {
		return RouteSensitive
	}
	if matchesAny(path, p.ExtendedPrefixes) {
		return RouteExtended
	}
	return RouteDefault
}

// TimeoutFor returns the inactivity timeout for path.
func (p RoutePolicy) TimeoutFor(path string) time.Duration {
	switch p.Classify(path) {
	case RouteSensitive:
		return p.Sensitive
	case RouteExtended:
		return p.Extended
	default:
		return p.Default
	}
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// matchesAny matches whole path segments so "/payments" covers "/payments/42" but not
// "/paymentsummary".
func matchesAny(path string, prefixes []string) bool {
	for _, pre := range prefixes {
		if pre == "" || pre == "/" {
			continue
		}
		if path == pre || strings.HasPrefix(path, pre+"/") {
			return true
		}
	}
	return false
}
