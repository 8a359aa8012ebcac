package brokenlink

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/config"
	"sitewatch/internal/constants"
	"sitewatch/internal/logger"
	"sitewatch/internal/notify"
	"sitewatch/internal/ratelimit"
	"sitewatch/pkg/cel"
	"sitewatch/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ErrorEvent
	result notify.DeliveryResult
	panics bool
}

func (n *recordingNotifier) Notify(_ context.Context, evt models.ErrorEvent) notify.DeliveryResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.panics {
		panic("mailer exploded")
	}
	n.events = append(n.events, evt)
	if n.result == (notify.DeliveryResult{}) {
		return notify.DeliveryResult{Delivered: true, Recipient: "owner@example.com"}
	}
	return n.result
}

func (n *recordingNotifier) Events() []models.ErrorEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.ErrorEvent(nil), n.events...)
}

func (n *recordingNotifier) SetResult(res notify.DeliveryResult) {
	n.mu.Lock()
	n.result = res
	n.mu.Unlock()
}

type brokenStore struct{}

func (brokenStore) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}
func (brokenStore) Delete(context.Context, string) error      { return errors.New("redis down") }
func (brokenStore) Size(context.Context, string) (int, error) { return 0, errors.New("redis down") }

func siteSettings() config.NotificationSettings {
	return config.NotificationSettings{
		RecipientEmail: "owner@example.com",
		SiteName:       "Example",
		SiteURL:        "https://example.com",
	}
}

func rateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Policy:        constants.RateLimitPolicyCooldown,
		Cooldown:      time.Hour,
		HashAlgorithm: constants.HashAlgorithmSHA256,
		OnStoreError:  constants.FallbackAllow,
	}
}

type fixture struct {
	pipeline *Pipeline
	notifier *recordingNotifier
	clock    *fakeClock
}

func newFixture(t *testing.T, rules ...string) *fixture {
	t.Helper()

	clock := newFakeClock()
	policy := ratelimit.NewCooldownPolicy(ratelimit.NewMemoryStoreWithClock(clock.Now), rateLimitConfig(), logger.NopLogger())

	var ruleSet *cel.RuleSet
	if len(rules) > 0 {
		var err error
		ruleSet, err = cel.NewRuleSet(rules)
		require.NoError(t, err)
	}

	n := &recordingNotifier{}
	p := NewPipeline(policy, n, config.StaticSettings(siteSettings()), ruleSet, logger.NopLogger())
	p.now = clock.Now

	return &fixture{pipeline: p, notifier: n, clock: clock}
}

func notFound(url, referrer string) Signal {
	h := http.Header{}
	if referrer != "" {
		h.Set("Referer", referrer)
	}
	h.Set("User-Agent", "Mozilla/5.0")
	return Signal{NotFound: true, URL: url, Header: h, RemoteAddr: "203.0.113.7:5555"}
}

func TestPipeline_CooldownWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sig := notFound("https://example.com/missing-page", "https://example.com/blog")

	assert.Equal(t, OutcomeNotified, f.pipeline.Handle(ctx, sig))
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.KindInternalBrokenLink, events[0].Kind)
	assert.Equal(t, "https://example.com/missing-page", events[0].URL)
	assert.Equal(t, "https://example.com/blog", events[0].Referrer)
	assert.Equal(t, "Mozilla/5.0", events[0].UserAgent)
	assert.Equal(t, "203.0.113.7", events[0].ClientIP)
	assert.Equal(t, f.clock.Now(), events[0].DetectedAt)

	assert.Equal(t, OutcomeSuppressed, f.pipeline.Handle(ctx, sig))
	assert.Len(t, f.notifier.Events(), 1)

	f.clock.Advance(time.Hour + time.Second)

	assert.Equal(t, OutcomeNotified, f.pipeline.Handle(ctx, sig))
	assert.Len(t, f.notifier.Events(), 2)
}

func TestPipeline_Rejections(t *testing.T) {
	tests := []struct {
		name string
		sig  Signal
		want Outcome
	}{
		{
			name: "not a 404",
			sig:  Signal{NotFound: false, URL: "https://example.com/missing-page"},
			want: OutcomeIgnoredNotFound,
		},
		{
			name: "static asset",
			sig:  notFound("https://example.com/style.css?v=2", "https://example.com/blog"),
			want: OutcomeIgnoredStatic,
		},
		{
			name: "static asset external referrer",
			sig:  notFound("https://example.com/style.css?v=2", "https://google.com/"),
			want: OutcomeIgnoredStatic,
		},
		{
			name: "empty referrer",
			sig:  notFound("https://example.com/missing-page", ""),
			want: OutcomeIgnoredReferrer,
		},
		{
			name: "external referrer",
			sig:  notFound("https://example.com/missing-page", "https://google.com/search"),
			want: OutcomeIgnoredReferrer,
		},
		{
			name: "subdomain referrer",
			sig:  notFound("https://example.com/missing-page", "https://blog.example.com/"),
			want: OutcomeIgnoredReferrer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, tt.want, f.pipeline.Handle(context.Background(), tt.sig))
			assert.Empty(t, f.notifier.Events())
		})
	}
}

func TestPipeline_SiteURLFallsBackToRequestHost(t *testing.T) {
	n := &recordingNotifier{}
	settings := siteSettings()
	settings.SiteURL = ""
	p := NewPipeline(ratelimit.NoopPolicy{}, n, config.StaticSettings(settings), nil, logger.NopLogger())

	assert.Equal(t, OutcomeNotified, p.Handle(context.Background(), notFound("https://shop.example.org/gone", "https://shop.example.org/")))
	assert.Equal(t, OutcomeIgnoredReferrer, p.Handle(context.Background(), notFound("https://shop.example.org/gone", "https://example.com/")))
	assert.Len(t, n.Events(), 1)
}

func TestPipeline_LatchOncePerRequest(t *testing.T) {
	n := &recordingNotifier{}
	p := NewPipeline(ratelimit.NoopPolicy{}, n, config.StaticSettings(siteSettings()), nil, logger.NopLogger())
	sig := notFound("https://example.com/missing-page", "https://example.com/blog")

	ctx := WithLatch(context.Background())
	assert.Equal(t, OutcomeNotified, p.Handle(ctx, sig))
	assert.Equal(t, OutcomeIgnoredLatched, p.Handle(ctx, sig))
	assert.Len(t, n.Events(), 1)

	// A new request gets a new latch; with no cooldown it alerts again.
	assert.Equal(t, OutcomeNotified, p.Handle(WithLatch(context.Background()), sig))
	assert.Len(t, n.Events(), 2)
}

func TestPipeline_IgnoreRules(t *testing.T) {
	f := newFixture(t, `user_agent.contains("Googlebot")`, `path.startsWith("/wp-admin")`)
	ctx := context.Background()

	bot := notFound("https://example.com/missing-page", "https://example.com/blog")
	bot.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")
	assert.Equal(t, OutcomeIgnoredRule, f.pipeline.Handle(ctx, bot))

	admin := notFound("https://example.com/wp-admin/old.php", "https://example.com/")
	assert.Equal(t, OutcomeIgnoredRule, f.pipeline.Handle(ctx, admin))

	assert.Equal(t, OutcomeNotified, f.pipeline.Handle(ctx, notFound("https://example.com/missing-page", "https://example.com/blog")))
	assert.Len(t, f.notifier.Events(), 1)
}

func TestPipeline_BrokenRuleFailsOpen(t *testing.T) {
	f := newFixture(t, `int(client_ip) > 0`)

	assert.Equal(t, OutcomeNotified, f.pipeline.Handle(context.Background(), notFound("https://example.com/missing-page", "https://example.com/blog")))
}

func TestPipeline_DeliveryFailureReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sig := notFound("https://example.com/missing-page", "https://example.com/blog")

	f.notifier.SetResult(notify.DeliveryResult{Err: errors.New("smtp down")})
	assert.Equal(t, OutcomeDeliveryFailed, f.pipeline.Handle(ctx, sig))

	f.notifier.SetResult(notify.DeliveryResult{})
	assert.Equal(t, OutcomeNotified, f.pipeline.Handle(ctx, sig))
	assert.Len(t, f.notifier.Events(), 2)
}

func TestPipeline_SkippedDeliveryReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sig := notFound("https://example.com/missing-page", "https://example.com/blog")

	f.notifier.SetResult(notify.DeliveryResult{Skipped: true})
	assert.Equal(t, OutcomeSkipped, f.pipeline.Handle(ctx, sig))

	f.notifier.SetResult(notify.DeliveryResult{})
	assert.Equal(t, OutcomeNotified, f.pipeline.Handle(ctx, sig))
}

func TestPipeline_StoreErrorDeny(t *testing.T) {
	cfg := rateLimitConfig()
	cfg.OnStoreError = constants.FallbackDeny
	n := &recordingNotifier{}
	p := NewPipeline(ratelimit.NewCooldownPolicy(brokenStore{}, cfg, logger.NopLogger()), n, config.StaticSettings(siteSettings()), nil, logger.NopLogger())

	assert.Equal(t, OutcomeSuppressed, p.Handle(context.Background(), notFound("https://example.com/missing-page", "https://example.com/blog")))
	assert.Empty(t, n.Events())
}

func TestPipeline_StoreErrorAllow(t *testing.T) {
	n := &recordingNotifier{}
	p := NewPipeline(ratelimit.NewCooldownPolicy(brokenStore{}, rateLimitConfig(), logger.NopLogger()), n, config.StaticSettings(siteSettings()), nil, logger.NopLogger())

	assert.Equal(t, OutcomeNotified, p.Handle(context.Background(), notFound("https://example.com/missing-page", "https://example.com/blog")))
}

func TestPipeline_RecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.notifier.panics = true

	var outcome Outcome
	assert.NotPanics(t, func() {
		outcome = f.pipeline.Handle(context.Background(), notFound("https://example.com/missing-page", "https://example.com/blog"))
	})
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestPipeline_ConcurrentSameURL(t *testing.T) {
	f := newFixture(t)
	sig := notFound("https://example.com/missing-page", "https://example.com/blog")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.pipeline.Handle(context.Background(), sig)
		}()
	}
	wg.Wait()

	assert.Len(t, f.notifier.Events(), 1)
}

func TestPipeline_ForwardedClientIP(t *testing.T) {
	f := newFixture(t)
	sig := notFound("https://example.com/missing-page", "https://example.com/blog")
	sig.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	require.Equal(t, OutcomeNotified, f.pipeline.Handle(context.Background(), sig))
	assert.Equal(t, "10.0.0.1", f.notifier.Events()[0].ClientIP)
}
