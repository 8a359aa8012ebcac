// Package classifier holds the pure request-classification rules used to
// decide whether a not-found response is a broken internal link.
package classifier

import (
	"net/url"
	"path"
	"strings"
)

var staticAssetExtensions = map[string]struct{}{
	"css": {}, "js": {}, "map": {},
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "svg": {}, "ico": {},
	"woff": {}, "woff2": {}, "ttf": {}, "eot": {},
}

// IsStaticAsset reports whether the path of rawURL ends in a static asset
// extension. URLs without a path or without an extension are content.
func IsStaticAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return false
	}

	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	if ext == "" {
		return false
	}

	_, ok := staticAssetExtensions[strings.ToLower(ext)]
	return ok
}
