package constants

import "time"

const (
	ServiceName = "sitewatch"
)

const (
	CacheKeyPrefixRateLimit = "sitewatch:ratelimit:"
)

const (
	DefaultCooldown = time.Hour
)

const (
	DefaultSitemapTimeout      = 30 * time.Second
	DefaultSitemapMaxRedirects = 5
	DefaultSitemapSchedule     = "0 */12 * * *"
)

const (
	DefaultSMTPPort = 587
)

const (
	ShutdownTimeout    = 5 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	RateLimitPolicyCooldown = "cooldown"
	RateLimitPolicyNone     = "none"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	HashAlgorithmSHA256 = "sha256"
	HashAlgorithmMD5    = "md5"
)
