package sitemap

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"sitewatch/internal/config"
	"sitewatch/internal/constants"
	"sitewatch/internal/logger"
)

type Runner interface {
	Check(ctx context.Context) (Result, error)
}

// Schedule runs the sitemap check on a cron expression. Start and Stop may
// be called any number of times.
type Schedule struct {
	runner       Runner
	expr         string
	checkOnStart bool
	logger       logger.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSchedule(runner Runner, cfg config.SitemapConfig, log logger.Logger) *Schedule {
	expr := cfg.Schedule
	if expr == "" {
		expr = constants.DefaultSitemapSchedule
	}
	return &Schedule{
		runner:       runner,
		expr:         expr,
		checkOnStart: cfg.CheckOnStart,
		logger:       log,
	}
}

func (s *Schedule) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(s.expr, func() { s.run(ctx, "schedule") }); err != nil {
		cancel()
		return fmt.Errorf("invalid sitemap schedule %q: %w", s.expr, err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Infow("Sitemap schedule started", "schedule", s.expr)

	if s.checkOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx, "startup")
		}()
	}
	return nil
}

// Stop cancels any in-flight check and waits for running jobs to return.
func (s *Schedule) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.cron = nil
	s.cancel = nil
	s.logger.Infow("Sitemap schedule stopped")
}

func (s *Schedule) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Schedule) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

func (s *Schedule) run(ctx context.Context, trigger string) {
	res, err := s.runner.Check(ctx)
	if err != nil {
		s.logger.Debugw("Sitemap check aborted", "trigger", trigger, "error", err)
		return
	}
	s.logger.Debugw("Sitemap check finished",
		"trigger", trigger,
		"status", res.Status,
		"error_code", res.ErrorCode,
	)
}

type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
