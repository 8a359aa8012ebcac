package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"sitewatch/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateSite(cfg.Site); err != nil {
		errs = append(errs, err)
	}

	if err := validateNotification(cfg.Notification); err != nil {
		errs = append(errs, err)
	}

	if err := validateSMTP(cfg.SMTP); err != nil {
		errs = append(errs, err)
	}

	if err := validateSitemap(cfg.Sitemap); err != nil {
		errs = append(errs, err)
	}

	if err := validateRateLimit(cfg.RateLimit, cfg.Database.Redis); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateSite(cfg SiteConfig) error {
	if cfg.URL != "" {
		if err := validateHTTPURL("site.url", cfg.URL); err != nil {
			return err
		}
	}

	if cfg.Upstream != "" {
		if err := validateHTTPURL("site.upstream", cfg.Upstream); err != nil {
			return err
		}
	}

	return nil
}

func validateNotification(cfg NotificationConfig) error {
	if cfg.MaxPerHour < 0 {
		return &ValidationError{
			Field:   "notification.max_per_hour",
			Message: "max_per_hour must be non-negative",
		}
	}
	return nil
}

func validateSMTP(cfg SMTPConfig) error {
	if cfg.Host == "" {
		return nil
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "smtp.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.From == "" {
		return &ValidationError{
			Field:   "smtp.from",
			Message: "sender address is required when smtp.host is set",
		}
	}

	return nil
}

func validateSitemap(cfg SitemapConfig) error {
	if cfg.URL != "" {
		if err := validateHTTPURL("sitemap.url", cfg.URL); err != nil {
			return err
		}
	}

	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return &ValidationError{
			Field:   "sitemap.schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
		}
	}

	if cfg.Timeout <= 0 || cfg.Timeout > constants.DefaultSitemapTimeout {
		return &ValidationError{
			Field:   "sitemap.timeout",
			Message: fmt.Sprintf("timeout must be in (0, %s], got %s", constants.DefaultSitemapTimeout, cfg.Timeout),
		}
	}

	if cfg.MaxRedirects < 0 {
		return &ValidationError{
			Field:   "sitemap.max_redirects",
			Message: "max_redirects must be non-negative",
		}
	}

	return nil
}

func validateRateLimit(cfg RateLimitConfig, redis RedisConfig) error {
	switch strings.ToLower(cfg.Policy) {
	case constants.RateLimitPolicyNone:
		return nil
	case constants.RateLimitPolicyCooldown:
	default:
		return &ValidationError{
			Field:   "rate_limit.policy",
			Message: fmt.Sprintf("invalid policy: %s (valid: cooldown, none)", cfg.Policy),
		}
	}

	if cfg.Cooldown <= 0 {
		return &ValidationError{
			Field:   "rate_limit.cooldown",
			Message: "cooldown must be positive",
		}
	}

	validAlgorithms := map[string]bool{
		constants.HashAlgorithmSHA256: true, constants.HashAlgorithmMD5: true,
	}
	if cfg.HashAlgorithm != "" && !validAlgorithms[strings.ToLower(cfg.HashAlgorithm)] {
		return &ValidationError{
			Field:   "rate_limit.hash_algorithm",
			Message: fmt.Sprintf("invalid hash algorithm: %s (valid: sha256, md5)", cfg.HashAlgorithm),
		}
	}

	validOnError := map[string]bool{
		constants.FallbackAllow: true, constants.FallbackDeny: true,
	}
	if cfg.OnStoreError != "" && !validOnError[strings.ToLower(cfg.OnStoreError)] {
		return &ValidationError{
			Field:   "rate_limit.on_store_error",
			Message: fmt.Sprintf("invalid on_store_error value: %s (valid: allow, deny)", cfg.OnStoreError),
		}
	}

	switch strings.ToLower(cfg.Backend) {
	case constants.RateLimitBackendMemory:
		return nil
	case constants.RateLimitBackendRedis:
		return validateRedis(redis)
	default:
		return &ValidationError{
			Field:   "rate_limit.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: memory, redis)", cfg.Backend),
		}
	}
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required for the redis rate limit backend",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", raw),
		}
	}
	return nil
}
