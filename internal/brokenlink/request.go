package brokenlink

import (
	"net/http"
	"net/url"
	"strings"
)

const HeaderXForwardedProto = "X-Forwarded-Proto"

// RequestURL rebuilds the absolute URL the client asked for: scheme, host,
// path and query. The scheme follows X-Forwarded-Proto when a proxy set it.
func RequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get(HeaderXForwardedProto); proto != "" {
		proto = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
		if proto == "http" || proto == "https" {
			scheme = proto
		}
	}

	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}

	u := url.URL{Scheme: scheme, Host: host}
	if r.URL != nil {
		u.Path = r.URL.Path
		u.RawPath = r.URL.RawPath
		u.RawQuery = r.URL.RawQuery
	}
	return u.String()
}
