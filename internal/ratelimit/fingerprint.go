package ratelimit

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"sitewatch/internal/constants"
	"sitewatch/pkg/models"
)

// Fingerprinter derives the suppression key of a (kind, url) pair.
type Fingerprinter struct {
	algorithm string
	prefix    string
}

func NewFingerprinter(algorithm string) *Fingerprinter {
	return &Fingerprinter{
		algorithm: strings.ToLower(algorithm),
		prefix:    constants.CacheKeyPrefixRateLimit,
	}
}

func (f *Fingerprinter) Key(kind models.Kind, url string) string {
	input := string(kind) + "|" + url

	switch f.algorithm {
	case constants.HashAlgorithmMD5:
		sum := md5.Sum([]byte(input))
		return f.prefix + hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256([]byte(input))
		return f.prefix + hex.EncodeToString(sum[:])
	}
}

func (f *Fingerprinter) Prefix() string {
	return f.prefix
}
