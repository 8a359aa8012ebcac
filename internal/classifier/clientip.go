package classifier

import (
	"net"
	"net/http"
	"strings"

	"sitewatch/pkg/models"
)

const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderXRealIP        = "X-Real-IP"
	HeaderXForwardedFor  = "X-Forwarded-For"
)

// ResolveClientIP returns the best-effort client address: CDN header, then
// reverse proxy header, then the first X-Forwarded-For hop, then the peer
// address. The result is diagnostic only and trivially spoofable.
func ResolveClientIP(h http.Header, remoteAddr string) string {
	candidates := []string{
		h.Get(HeaderCFConnectingIP),
		h.Get(HeaderXRealIP),
		firstForwardedFor(h.Get(HeaderXForwardedFor)),
		peerHost(remoteAddr),
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if ip := net.ParseIP(c); ip != nil {
			return ip.String()
		}
	}
	return models.UnknownClientIP
}

func firstForwardedFor(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return first
}

func peerHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
