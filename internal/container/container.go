package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anime-shed/palm-oracle-go/internal/config"
	"github.com/anime-shed/palm-oracle-go/internal/factory"
	"github.com/anime-shed/palm-oracle-go/internal/logger"
	"github.com/anime-shed/palm-oracle-go/internal/observer"
	"github.com/anime-shed/palm-oracle-go/internal/oracle"
	"github.com/anime-shed/palm-oracle-go/internal/reading"
	"github.com/anime-shed/palm-oracle-go/internal/repository"
	"github.com/anime-shed/palm-oracle-go/internal/service"
	"github.com/anime-shed/palm-oracle-go/internal/session"
	"github.com/anime-shed/palm-oracle-go/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config    *config.Config
	oracle    oracle.Oracle
	pool      *session.WorkerPool
	publisher *observer.EventPublisher
	metrics   *observer.MetricsObserver
	sessions  *session.Manager
	service   service.ReadingService
	handler   http.Handler
}

// Option customizes how the container is built
type Option func(*options)

type options struct {
	oracle oracle.Oracle
}

// WithOracle uses o instead of building a client from the configuration
func WithOracle(o oracle.Oracle) Option {
	return func(opts *options) { opts.oracle = o }
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger.SetLevel(cfg.LogLevel)
	components := factory.NewComponentFactory(cfg)

	palmOracle := o.oracle
	if palmOracle == nil {
		var err error
		palmOracle, err = components.OracleFactory.CreateOracle(ctx, cfg.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to create oracle: %w", err)
		}
	}

	fetcher, err := components.StorageFactory.CreateStorage()
	if err != nil {
		return nil, err
	}

	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	pool := session.NewWorkerPool(cfg.MaxConcurrentReadings)
	sessions := session.NewManager(cfg.SessionTTL, func(id string) *reading.Controller {
		return reading.NewController(palmOracle,
			reading.WithDispatcher(pool),
			reading.WithPublisher(publisher),
			reading.WithSessionID(id),
		)
	})

	imageRepository := repository.NewRemoteImageRepository(fetcher)
	readingService := service.NewReadingService(sessions, imageRepository)
	handler := transport.NewHandler(readingService, metrics, pool, palmOracle.Name(), cfg)

	logger.WithField("oracle", palmOracle.Name()).
		WithField("model", cfg.Model).
		WithField("max_concurrent", cfg.MaxConcurrentReadings).
		Info("Container initialized")

	return &Container{
		config:    cfg,
		oracle:    palmOracle,
		pool:      pool,
		publisher: publisher,
		metrics:   metrics,
		sessions:  sessions,
		service:   readingService,
		handler:   handler,
	}, nil
}

// Start launches the worker pool and the idle session sweeper. The sweeper
// stops when ctx is done.
func (c *Container) Start(ctx context.Context) {
	c.pool.Start()

	interval := c.config.SessionTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	go c.sessions.Run(ctx, interval)
}

// Close stops accepting readings and waits for those in flight
func (c *Container) Close() {
	c.pool.Close()
	c.pool.Wait()
	c.publisher.Flush()
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the reading service
func (c *Container) Service() service.ReadingService {
	return c.service
}

// Metrics returns reading counters collected so far
func (c *Container) Metrics() observer.Metrics {
	return c.metrics.GetMetrics()
}
