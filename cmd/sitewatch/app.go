package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"sitewatch/internal/brokenlink"
	"sitewatch/internal/config"
	"sitewatch/internal/constants"
	"sitewatch/internal/logger"
	"sitewatch/internal/notify"
	"sitewatch/internal/ratelimit"
	"sitewatch/internal/sitemap"
	"sitewatch/pkg/bootstrap"
	"sitewatch/pkg/cel"
	"sitewatch/pkg/health"
	"sitewatch/pkg/metrics"
	"sitewatch/pkg/middleware"
	"sitewatch/pkg/retry"
	"sitewatch/pkg/tracing"
)

const rateLimitSizeInterval = 30 * time.Second

type App struct {
	*bootstrap.Base
	store *config.Store

	rateStore      ratelimit.Store
	policy         ratelimit.Policy
	sender         notify.Sender
	notifier       *notify.Notifier
	pipeline       *brokenlink.Pipeline
	watcher        *brokenlink.Watcher
	checker        *sitemap.Checker
	schedule       *sitemap.Schedule
	health         *health.CheckerRegistry
	router         *gin.Engine
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(store *config.Store, log logger.Logger) *App {
	return &App{
		Base:  bootstrap.NewBase(store.Current(), log),
		store: store,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()
	a.health = health.NewCheckerRegistry()

	if err := a.initRateLimit(ctx); err != nil {
		return fmt.Errorf("failed to initialize rate limiting: %w", err)
	}

	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	a.initRouter()
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	return nil
}

func (a *App) initRateLimit(ctx context.Context) error {
	var store ratelimit.Store
	if a.Config.RateLimit.Backend == constants.RateLimitBackendRedis {
		client, err := a.InitRedis(ctx, retry.DefaultPolicy())
		if err != nil {
			return err
		}
		store = ratelimit.NewRedisStore(client)
		a.health.Register(health.NewRedisChecker(client))
	} else {
		store = ratelimit.NewMemoryStore()
	}

	if a.Config.CircuitBreaker.Enabled {
		cb := ratelimit.NewCircuitBreakerStore(store, a.Config.CircuitBreaker)
		a.health.Register(health.NewFuncChecker("ratelimit_circuit_breaker", func(context.Context) error {
			if cb.IsOpen() {
				return fmt.Errorf("%w: circuit breaker open", health.ErrDegraded)
			}
			return nil
		}))
		store = cb
		a.Logger.InfowCtx(ctx, "Circuit breaker enabled for rate limit store")
	}

	a.rateStore = store
	a.policy = ratelimit.NewPolicy(a.Config.RateLimit, store, a.Logger)
	a.Logger.InfowCtx(ctx, "Rate limiting configured",
		"policy", a.Config.RateLimit.Policy,
		"backend", a.Config.RateLimit.Backend,
		"cooldown", a.Config.RateLimit.Cooldown,
	)
	return nil
}

func (a *App) initPipeline() error {
	if a.sender == nil {
		if a.Config.SMTP.Host == "" {
			a.sender = notify.NewLogSender(a.Logger)
		} else {
			a.sender = notify.NewSMTPSender(a.Config.SMTP)
		}
	}
	a.notifier = notify.NewNotifier(a.sender, a.store, a.Config.Notification, a.Logger)

	rules, err := cel.NewRuleSet(a.Config.BrokenLink.IgnoreRules)
	if err != nil {
		return fmt.Errorf("invalid ignore rules: %w", err)
	}

	a.pipeline = brokenlink.NewPipeline(a.policy, a.notifier, a.store, rules, a.Logger)
	a.watcher = brokenlink.NewWatcher(a.pipeline)

	a.checker = sitemap.NewChecker(a.Config.Sitemap, a.policy, a.notifier, a.store, a.Logger)
	a.schedule = sitemap.NewSchedule(a.checker, a.Config.Sitemap, a.Logger)
	a.health.Register(health.NewFuncChecker("sitemap", func(context.Context) error {
		res, ok := a.checker.Last()
		if !ok {
			return nil
		}
		if res.Status == sitemap.StatusUnreachable || res.Status == sitemap.StatusSuppressed {
			return fmt.Errorf("%w: sitemap unreachable (%s)", health.ErrDegraded, res.ErrorCode)
		}
		return nil
	}))
	return nil
}

func (a *App) initRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(a.watcher.Middleware())

	router.GET("/health", func(c *gin.Context) {
		h := a.health.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(a.upstreamHandler())

	a.router = router
}

// upstreamHandler proxies unmatched requests to the site. Without an upstream
// every unmatched request is a 404.
func (a *App) upstreamHandler() gin.HandlerFunc {
	if a.Config.Site.Upstream == "" {
		return func(c *gin.Context) {
			c.String(http.StatusNotFound, "404 page not found")
		}
	}

	target, err := url.Parse(a.Config.Site.Upstream)
	if err != nil {
		// Rejected by config validation; kept for programmatic configs.
		return func(c *gin.Context) {
			c.String(http.StatusBadGateway, "invalid upstream")
		}
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			r.Out.Host = r.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			a.Logger.ErrorwCtx(r.Context(), "Upstream request failed",
				"path", r.URL.Path,
				"error", err,
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

func (a *App) Run(ctx context.Context) error {
	if err := a.schedule.Start(); err != nil {
		return err
	}
	a.store.Watch(a.Logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if cooldown, ok := a.policy.(*ratelimit.CooldownPolicy); ok {
		g.Go(func() error {
			cooldown.ReportSize(gCtx, rateLimitSizeInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

// Shutdown stops intake first, then drains in-flight alerts before closing
// shared connections.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	return a.Base.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.schedule != nil {
			a.schedule.Stop()
		}

		if a.watcher != nil {
			if err := a.watcher.Wait(ctx); err != nil {
				errs = append(errs, fmt.Errorf("pending alerts not drained: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	})
}
