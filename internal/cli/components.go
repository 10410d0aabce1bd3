package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/fmuoria/shortlist-agent/internal/config"
	"github.com/fmuoria/shortlist-agent/internal/llm"
	"github.com/fmuoria/shortlist-agent/internal/logging"
	"github.com/fmuoria/shortlist-agent/internal/metrics"
	"github.com/fmuoria/shortlist-agent/internal/notify"
	"github.com/fmuoria/shortlist-agent/internal/pipeline"
	"github.com/fmuoria/shortlist-agent/internal/ratelimit"
	"github.com/fmuoria/shortlist-agent/internal/scoring"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

// components are the long-lived dependencies shared by every command
type components struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.SQL
	metrics  *metrics.Collector
	notifier notify.Notifier
	reporter notify.Reporter
	closers  []func() error
}

// loadConfig reads and validates the configuration at path
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openComponents loads the config and opens the store and notification channels
func openComponents(ctx context.Context, configPath string, reg prometheus.Registerer) (*components, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	s, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	c := &components{
		cfg:     cfg,
		logger:  logger,
		store:   s,
		metrics: metrics.NewCollector(reg),
		closers: []func() error{s.Close},
	}

	if c.notifier, err = newNotifier(ctx, cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	if c.reporter, err = newReporter(cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close releases everything opened by openComponents, newest first
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newNotifier sends through Gmail when credentials are configured and logs otherwise
func newNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.GmailCredentialsPath == "" {
		logger.Warn("gmail is not configured, candidate notices will only be logged")
		return notify.NewLogNotifier(logger), nil
	}
	n, err := notify.NewGmailNotifier(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath, cfg.GmailSender, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail notifier: %w", err)
	}
	return n, nil
}

func newReporter(cfg *config.Config, logger *slog.Logger) (notify.Reporter, error) {
	if cfg.TelegramToken == "" {
		return notify.NewLogReporter(logger), nil
	}
	r, err := notify.NewTelegramReporter(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram reporter: %w", err)
	}
	return r, nil
}

// newLimiter shares submission limits through Redis when configured. A zero
// per-window limit disables rate limiting.
func (c *components) newLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	if c.cfg.RateLimitPerWindow <= 0 {
		return nil, nil
	}
	if c.cfg.RedisURL == "" {
		return ratelimit.NewMemoryLimiter(c.cfg.RateLimitPerWindow, c.cfg.RateLimitWindow()), nil
	}

	opts, err := redis.ParseURL(c.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.closers = append(c.closers, client.Close)
	return ratelimit.NewRedisLimiter(client, c.cfg.RateLimitPerWindow, c.cfg.RateLimitWindow(), "shortlist:ratelimit:"), nil
}

// newScorers connects to Vertex AI and builds the resume and interview scorers
func (c *components) newScorers(ctx context.Context) (*scoring.LLMResumeScorer, *scoring.LLMInterviewScorer, error) {
	if err := c.cfg.ValidateScoring(); err != nil {
		return nil, nil, fmt.Errorf("scoring is not configured: %w", err)
	}
	client, err := llm.NewVertexAIClient(ctx, llm.Options{
		ProjectID:       c.cfg.GoogleCloudProject,
		Location:        c.cfg.GoogleCloudLocation,
		Model:           c.cfg.VertexModel,
		CredentialsFile: c.cfg.GoogleCredentialsPath,
	}, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}
	c.closers = append(c.closers, client.Close)
	return scoring.NewResumeScorer(client), scoring.NewInterviewScorer(client), nil
}

func (c *components) newOrchestrator() *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(c.store, c.notifier, c.reporter, c.metrics, pipeline.OrchestratorOptions{
		NotifyConcurrency: c.cfg.NotifyConcurrency,
		Timeout:           c.cfg.ShortlistTimeout(),
	}, c.logger)
}

func (c *components) newHost(dispatcher pipeline.Submitter) *pipeline.Host {
	return pipeline.NewHost(c.store, c.notifier, dispatcher, c.metrics, c.cfg.NotifyConcurrency, c.logger)
}

func (c *components) newRetrier() *pipeline.Retrier {
	return pipeline.NewRetrier(c.store, c.notifier, c.metrics, c.cfg.NotifyConcurrency, c.logger)
}
