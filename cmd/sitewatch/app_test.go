package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/config"
	"sitewatch/internal/constants"
	"sitewatch/internal/logger"
	"sitewatch/internal/notify"
	"sitewatch/pkg/health"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (s *captureSender) Name() string { return "capture" }

func (s *captureSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureSender) Messages() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.msgs...)
}

func testConfig(upstream, sitemapURL string) *config.Config {
	return &config.Config{
		Site: config.SiteConfig{
			Name:     "Example",
			URL:      "https://example.com",
			Upstream: upstream,
		},
		Notification: config.NotificationConfig{RecipientEmail: "owner@example.com"},
		Sitemap:      config.SitemapConfig{URL: sitemapURL},
		RateLimit: config.RateLimitConfig{
			Policy:        constants.RateLimitPolicyCooldown,
			Backend:       constants.RateLimitBackendMemory,
			Cooldown:      time.Hour,
			HashAlgorithm: constants.HashAlgorithmSHA256,
			OnStoreError:  constants.FallbackAllow,
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	app := NewApp(config.NewStore(cfg), logger.NopLogger())
	app.sender = sender
	require.NoError(t, app.Initialize(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app, sender
}

func serve(app *App, path, referrer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "https://example.com"+path, nil)
	if referrer != "" {
		req.Header.Set("Referer", referrer)
	}
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func drain(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.watcher.Wait(ctx))
}

func TestApp_ProxiedNotFoundIsReportedOnce(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/about" {
			_, _ = w.Write([]byte("about"))
			return
		}
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	app, sender := newTestApp(t, testConfig(upstream.URL, ""))

	rec := serve(app, "/about", "https://example.com/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "about", rec.Body.String())

	rec = serve(app, "/missing-page", "https://example.com/blog")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	serve(app, "/missing-page", "https://example.com/blog")
	serve(app, "/style.css?v=2", "https://example.com/blog")
	serve(app, "/other", "")
	drain(t, app)

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "owner@example.com", msgs[0].To)
	assert.Equal(t, "[Example] Broken link detected", msgs[0].Subject)
	assert.Contains(t, msgs[0].TextBody, "URL: https://example.com/missing-page")
}

func TestApp_StandaloneNotFound(t *testing.T) {
	app, sender := newTestApp(t, testConfig("", ""))

	rec := serve(app, "/nowhere", "https://example.com/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	drain(t, app)

	assert.Len(t, sender.Messages(), 1)
}

func TestApp_HealthReflectsSitemap(t *testing.T) {
	sitemapSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sitemapSrv.Close()

	app, sender := newTestApp(t, testConfig("", sitemapSrv.URL+"/sitemap.xml"))

	rec := serve(app, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := app.checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, sender.Messages(), 1)
	assert.Equal(t, "[Example] Sitemap unreachable", sender.Messages()[0].Subject)

	rec = serve(app, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var h health.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, health.StatusDegraded, h.Status)
	assert.Equal(t, health.StatusDegraded, h.Checks["sitemap"].Status)
}

func TestApp_InvalidIgnoreRule(t *testing.T) {
	cfg := testConfig("", "")
	cfg.BrokenLink.IgnoreRules = []string{"url +"}

	app := NewApp(config.NewStore(cfg), logger.NopLogger())
	assert.Error(t, app.Initialize(context.Background()))
}

func TestApp_MetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t, testConfig("", ""))

	rec := serve(app, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitewatch_ratelimit_active_keys")
}
