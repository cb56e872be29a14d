// Package modr mounts MODR request monitoring on a host gin engine.
//
// A host opens a Monitor once at startup, installs it on its engine before
// registering its own routes, and closes it on shutdown so in-flight
// captures are written:
//
//	mon, err := modr.Open(ctx, modr.DefaultConfig(), modr.WithDB(db))
//	if err != nil {
//		return err
//	}
//	defer mon.Close(context.Background())
//
//	r := gin.New()
//	mon.Install(r)
//	r.GET("/api/users", listUsers)
package modr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Miguel-Alzate/modr/internal/config"
	"github.com/Miguel-Alzate/modr/internal/notifier"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
	"github.com/Miguel-Alzate/modr/internal/repository"
	"github.com/Miguel-Alzate/modr/internal/server"
	"github.com/Miguel-Alzate/modr/internal/service"
	"github.com/Miguel-Alzate/modr/internal/validation"
)

// Config is the full MODR configuration.
type Config = config.Config

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads MODR_* environment variables, a .env file and an
// optional config file on top of the defaults.
func LoadConfig() (*Config, error) {
	return config.Load()
}

type options struct {
	db *gorm.DB
}

type Option func(*options)

// WithDB stores captures in db instead of opening the configured database.
// The caller keeps ownership of db; Close leaves it open.
func WithDB(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// Monitor owns the capture pipeline, the dashboard services and the
// notification fan-out for one host process.
type Monitor struct {
	cfg       *config.Config
	db        *gorm.DB
	ownsDB    bool
	refs      *repository.ReferenceCache
	capture   *service.CaptureService
	dashboard *service.DashboardService
	hub       *notifier.Hub
	redis     *redis.Client
	retention *service.RetentionService
}

// Open migrates the MODR schema and starts the background parts the
// configuration enables: the websocket hub, the Redis mirror and the
// retention schedule. A nil cfg means DefaultConfig.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Monitor{cfg: cfg, db: o.db}
	if m.db == nil {
		db, err := repository.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		m.db, m.ownsDB = db, true
	}
	if err := m.start(ctx); err != nil {
		_ = m.Close(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Monitor) start(ctx context.Context) error {
	cfg := m.cfg
	if err := repository.Migrate(ctx, m.db); err != nil {
		return err
	}
	logger.Info("Database ready", "driver", m.db.Dialector.Name())

	refs, err := repository.NewReferenceCache(cfg.Capture.ReferenceCache)
	if err != nil {
		return fmt.Errorf("reference cache: %w", err)
	}
	m.refs = refs

	var fanout notifier.Multi
	if cfg.Notifier.Enabled {
		m.hub = notifier.NewHub(notifier.HubOptions{
			PingPeriod: time.Duration(cfg.Notifier.HeartbeatSeconds) * time.Second,
			SendBuffer: cfg.Notifier.SendBuffer,
		})
		fanout = append(fanout, m.hub)
	}
	if cfg.Redis.Addr != "" {
		client, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
			m.redis = client
			fanout = append(fanout, notifier.NewRedisPublisher(client, cfg.Redis.ChannelPrefix))
		} else {
			logger.Error("Failed to connect to Redis, events stay local", "error", err)
		}
	}

	rules := validation.DefaultRules()
	rules.MaxBodyBytes = cfg.Capture.MaxBodyBytes
	rules.PreviewChars = cfg.Capture.PreviewChars

	m.capture = service.NewCaptureService(
		validation.New(rules),
		repository.NewCaptureRepo(m.db, refs, cfg.Capture.ImportantHeaders),
		repository.NewQueryRepo(m.db),
		fanout,
		time.Duration(cfg.Capture.TimeoutMs)*time.Millisecond,
	)
	m.dashboard = service.NewDashboardService(
		repository.NewRequestRepo(m.db),
		repository.NewStatsRepo(m.db),
		repository.NewCleanupRepo(m.db),
	)

	if cfg.Retention.Enabled {
		m.retention, err = service.NewRetentionService(m.dashboard, cfg.Retention.Schedule, cfg.Retention.Days)
		if err != nil {
			return fmt.Errorf("retention: %w", err)
		}
		m.retention.Start()
		logger.Info("Retention scheduled", "schedule", cfg.Retention.Schedule, "days", cfg.Retention.Days)
	}
	return nil
}

func (m *Monitor) deps() server.Deps {
	return server.Deps{
		Config:    m.cfg,
		DB:        m.db,
		Capture:   m.capture,
		Dashboard: m.dashboard,
		Hub:       m.hub,
	}
}

// Install adds the capture middleware to r and mounts the dashboard API
// under the configured prefix. Only routes registered on r after Install
// are captured.
func (m *Monitor) Install(r *gin.Engine) {
	server.Install(r, m.deps())
}

// Handler returns a standalone engine with recovery and monitoring
// installed, ready for host routes.
func (m *Monitor) Handler() *gin.Engine {
	return server.New(m.deps())
}

// Close waits for queued captures until ctx ends, then stops the
// scheduler, the hub and the Redis client. It closes the database only
// when Open created it.
func (m *Monitor) Close(ctx context.Context) error {
	var errs []error
	if m.capture != nil {
		if err := m.capture.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain captures: %w", err))
		}
	}
	if m.retention != nil {
		m.retention.Stop()
	}
	if m.hub != nil {
		m.hub.Close()
	}
	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if m.refs != nil {
		m.refs.Close()
	}
	if m.ownsDB && m.db != nil {
		if sqlDB, err := m.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
