package httpapi

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// forwardedHeaders are consulted in order when the peer is a trusted proxy.
var forwardedHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// DefaultTrustedProxies trusts only loopback peers.
func DefaultTrustedProxies() []netip.Prefix {
	return []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")}
}

// ParseTrustedProxies parses CIDRs from configuration.
func ParseTrustedProxies(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

type ipResolver struct {
	trusted []netip.Prefix
}

// clientIP returns the peer address, or the first forwarded hop when the
// peer is a trusted proxy.
func (res ipResolver) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}

	addr, err := netip.ParseAddr(peer)
	if err != nil || !res.isTrusted(addr.Unmap()) {
		return peer
	}

	for _, h := range forwardedHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		first = strings.TrimSpace(first)
		if a, err := netip.ParseAddr(first); err == nil {
			return a.Unmap().String()
		}
	}
	return peer
}

func (res ipResolver) isTrusted(a netip.Addr) bool {
	for _, p := range res.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
