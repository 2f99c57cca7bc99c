package identity

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RequestClass partitions inbound requests so the resolver can pick the
// right identifier plugins and the right challenge behavior.
type RequestClass int

const (
	// ClassAPI is a programmatic client (JSON API paths or an Accept
	// header that prefers JSON). Challenges are bare 401 responses.
	ClassAPI RequestClass = iota

	// ClassInternal is an API request arriving from one of the configured
	// internal networks: another Vigilo component (correlator, collector)
	// calling service-to-service. Challenges are bare 401 responses.
	ClassInternal

	// ClassBrowser is an interactive client authenticating locally.
	// Challenges redirect to the login page.
	ClassBrowser

	// ClassBrowserExternal is an interactive client arriving through the
	// pre-authenticating front end. No challenge is ever issued: if the
	// header is missing the upstream is misconfigured and we fail closed.
	ClassBrowserExternal

	// ClassStatic is an asset request that never needs authentication.
	ClassStatic
)

func (c RequestClass) String() string {
	switch c {
	case ClassAPI:
		return "api"
	case ClassInternal:
		return "internal"
	case ClassBrowser:
		return "browser"
	case ClassBrowserExternal:
		return "browser-external"
	case ClassStatic:
		return "static"
	default:
		return "unknown"
	}
}

// ParseInternalNetworks parses the configured internal-network CIDR list.
func ParseInternalNetworks(cidrs []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, c := range cidrs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("internal network %q: %w", c, err)
		}
		out = append(out, prefix)
	}
	return out, nil
}

// Classifier assigns a RequestClass to each request.
type Classifier struct {
	// APIPrefixes mark path prefixes served as JSON API.
	APIPrefixes []string

	// StaticPrefixes mark asset paths that skip authentication.
	StaticPrefixes []string

	// InternalNetworks lists networks whose API requests classify as
	// internal service-to-service traffic. Empty disables the class.
	InternalNetworks []netip.Prefix

	// RemoteUserHeader, when present on the request, switches browser
	// requests to the external class.
	RemoteUserHeader string
}

// Classify inspects the request path, remote address, and headers.
func (c *Classifier) Classify(r *http.Request) RequestClass {
	path := r.URL.Path
	for _, p := range c.StaticPrefixes {
		if strings.HasPrefix(path, p) {
			return ClassStatic
		}
	}
	for _, p := range c.APIPrefixes {
		if strings.HasPrefix(path, p) {
			if c.fromInternalNetwork(r) {
				return ClassInternal
			}
			return ClassAPI
		}
	}
	if accept := r.Header.Get("Accept"); strings.Contains(accept, "application/json") &&
		!strings.Contains(accept, "text/html") {
		return ClassAPI
	}
	if c.RemoteUserHeader != "" && r.Header.Get(c.RemoteUserHeader) != "" {
		return ClassBrowserExternal
	}
	return ClassBrowser
}

func (c *Classifier) fromInternalNetwork(r *http.Request) bool {
	if len(c.InternalNetworks) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// The RealIP middleware rewrites RemoteAddr to a bare address.
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	for _, network := range c.InternalNetworks {
		if network.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}
