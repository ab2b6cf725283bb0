package device

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type ctxKey struct{ name string }

var clientIPKey = &ctxKey{"ClientIP"}

// ProxyResolver decides which caller address to believe. Proxy headers are read only
// when the socket peer is one of the trusted prefixes.
type ProxyResolver struct {
	trusted []netip.Prefix
}

// NewProxyResolver returns a resolver trusting the given proxy prefixes. With none,
// every header is ignored and the socket address is used.
func NewProxyResolver(trusted []netip.Prefix) *ProxyResolver {
	return &ProxyResolver{trusted: trusted}
}

// Resolve returns the caller's address. From a trusted peer the headers are consulted
// in order: CF-Connecting-IP, the first X-Forwarded-For entry, X-Forwarded,
// Forwarded-For, Forwarded. Otherwise the peer address is returned.
func (p *ProxyResolver) Resolve(r *http.Request) string {
	peer := remoteHost(r)
	if !p.isTrusted(peer) {
		return peer
	}

	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	for _, h := range []string{"X-Forwarded", "Forwarded-For", "Forwarded"} {
		if v := r.Header.Get(h); v != "" {
			return strings.TrimSpace(v)
		}
	}
	return peer
}

// Middleware stores the resolved address for ClientIP.
func (p *ProxyResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey, p.Resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (p *ProxyResolver) isTrusted(peer string) bool {
	if len(p.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address resolved by ProxyResolver.Middleware, or the socket
// address when the request did not pass through it.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "UNKNOWN"
	}
	return r.RemoteAddr
}
