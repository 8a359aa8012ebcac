package models

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindInternalBrokenLink Kind = "internal_broken_link"
	KindSitemapUnreachable Kind = "sitemap_unreachable"
)

func (k Kind) Label() string {
	switch k {
	case KindInternalBrokenLink:
		return "Internal broken link"
	case KindSitemapUnreachable:
		return "Sitemap unreachable"
	default:
		return string(k)
	}
}

// UnknownClientIP is reported when no header or peer address yields a valid IP.
const UnknownClientIP = "Unknown"

// ErrorEvent is one detected problem. Build it with NewBrokenLinkEvent or
// NewSitemapEvent so that only the fields belonging to its Kind are set.
type ErrorEvent struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	URL          string    `json:"url"`
	Referrer     string    `json:"referrer,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
}

func NewBrokenLinkEvent(url, referrer, userAgent, clientIP string, detectedAt time.Time) ErrorEvent {
	if clientIP == "" {
		clientIP = UnknownClientIP
	}
	return ErrorEvent{
		ID:         uuid.New().String(),
		Kind:       KindInternalBrokenLink,
		URL:        url,
		Referrer:   referrer,
		UserAgent:  userAgent,
		ClientIP:   clientIP,
		DetectedAt: detectedAt,
	}
}

func NewSitemapEvent(url, errorCode, errorMessage string, detectedAt time.Time) ErrorEvent {
	return ErrorEvent{
		ID:           uuid.New().String(),
		Kind:         KindSitemapUnreachable,
		URL:          url,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		DetectedAt:   detectedAt,
	}
}
