package tenant

import (
	"net"
	"strings"
)

// Resolver derives the tenant Space from a request host.
// It is pure: no network or database access, and it never fails.
type Resolver struct {
	baseDomain string
}

// NewResolver constructs a Resolver. baseDomain is optional; when set, only hosts under it
// contribute a subdomain (e.g. "example.com" makes "acme.example.com" resolve to acme).
func NewResolver(baseDomain string) *Resolver {
	base := strings.Trim(strings.ToLower(strings.TrimSpace(baseDomain)), ".")
	return &Resolver{baseDomain: base}
}

// Resolve returns the Space for host. Hosts without a usable subdomain map to the default space.
func (r *Resolver) Resolve(host string) Space {
	key := r.Key(host)
	if key == DefaultKey {
		return Default()
	}
	return SpaceForKey(key)
}

// Key returns the tenant key for host: the leftmost label when the host carries a subdomain,
// DefaultKey otherwise.
func (r *Resolver) Key(host string) string {
	name := hostname(host)
	if name == "" || net.ParseIP(name) != nil {
		return DefaultKey
	}

	if r.baseDomain != "" {
		if name == r.baseDomain {
			return DefaultKey
		}
		if prefix, ok := strings.CutSuffix(name, "."+r.baseDomain); ok {
			return labelOrDefault(strings.Split(prefix, ".")[0])
		}
	}

	labels := strings.Split(name, ".")
	switch {
	case len(labels) < 2:
		return DefaultKey
	case len(labels) == 2 && labels[1] == "localhost":
		return labelOrDefault(labels[0])
	case len(labels) == 2:
		// a bare registrable domain such as example.com has no subdomain
		return DefaultKey
	default:
		return labelOrDefault(labels[0])
	}
}

func labelOrDefault(label string) string {
	if !ValidHostLabel(label) {
		return DefaultKey
	}
	return label
}

// hostname lowercases host and strips an optional port and trailing dot.
func hostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(host, ".")
}
