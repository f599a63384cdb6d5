package tenant

import (
	"net"
	"strings"
)

// Signals carries every tenant hint a request may present, in descending
// precedence: authenticated claim, explicit header, origin subdomain, query
// parameter. A malformed signal counts as absent and resolution falls
// through to the next level; it is never a hard error.
type Signals struct {
	Claim  string // tenant id from the authenticated session token
	Header string // X-Tenant-Id header value
	Host   string // request host, consulted for a subdomain
	Query  string // tenantId query parameter
}

// Resolve picks the active tenant identifier from the strongest parseable
// signal. Once a level parses, weaker levels are never consulted. The second
// return value is false when no signal resolved; callers decide whether the
// target operation tolerates that.
func Resolve(s Signals) (string, bool) {
	if id, ok := normalize(s.Claim); ok {
		return id, true
	}
	if id, ok := normalize(s.Header); ok {
		return id, true
	}
	if id, ok := subdomain(s.Host); ok {
		return id, true
	}
	if id, ok := normalize(s.Query); ok {
		return id, true
	}
	return "", false
}

// ExemptTargets is the caller-owned allow-list of operations that do not
// require a tenant (health probes, metrics, system administration).
type ExemptTargets map[string]struct{}

func NewExemptTargets(paths ...string) ExemptTargets {
	t := make(ExemptTargets, len(paths))
	for _, p := range paths {
		t[p] = struct{}{}
	}
	return t
}

// Contains reports whether the target path is tenant-exempt.
func (t ExemptTargets) Contains(path string) bool {
	_, ok := t[path]
	return ok
}

// normalize validates the shape of a candidate identifier. Identifiers are
// opaque but limited to the URL-safe alphabet; anything else is treated as
// an absent signal.
func normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 64 {
		return "", false
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", false
		}
	}
	return raw, true
}

// subdomain extracts the leftmost host label as a tenant slug. Skipped for
// localhost and literal IP hosts, and for hosts without enough labels to
// carry a subdomain at all.
func subdomain(host string) (string, bool) {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return "", false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" || net.ParseIP(host) != nil {
		return "", false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return "", false
	}
	if labels[0] == "www" {
		return "", false
	}
	return normalize(labels[0])
}
