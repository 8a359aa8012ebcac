package classifier

import (
	"net/url"
	"strings"
)

// IsInternalReferrer reports whether referrer points at the same host as
// siteURL. Only hostnames are compared; scheme and port are ignored.
func IsInternalReferrer(referrer, siteURL string) bool {
	refHost := hostOf(referrer)
	siteHost := hostOf(siteURL)
	if refHost == "" || siteHost == "" {
		return false
	}
	return strings.EqualFold(refHost, siteHost)
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
