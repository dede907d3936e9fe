package container

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"strings"

	"github.com/sirupsen/logrus"

	"screenmind/api/internal/analysis"
	"screenmind/api/internal/config"
	"screenmind/api/internal/logger"
	"screenmind/api/internal/question"
	"screenmind/api/internal/store"
	"screenmind/api/internal/worker"
)

// Container holds the dependencies shared by the HTTP API and the bot.
type Container struct {
	Config *config.Config

	// DB and Settings are nil when no database is configured.
	DB       *sql.DB
	Settings *store.SettingsRepo

	Service  *analysis.Service
	Analyzer *question.Analyzer
	Pool     *worker.Pool
}

// New connects the optional settings store, seeds the analysis service from
// it and starts the worker pool.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	var db *sql.DB
	if dsn := store.ResolveDSN(cfg.DatabaseURL); dsn != "" {
		var err error
		db, err = store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		logger.WithField("dsn", store.SafeDSNSummary(dsn)).Info("db connected")
	} else {
		logger.Info("no database configured, settings are kept in memory")
	}

	c, err := build(ctx, cfg, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	return c, nil
}

func build(ctx context.Context, cfg *config.Config, db *sql.DB, opts ...analysis.Option) (*Container, error) {
	c := &Container{Config: cfg, DB: db}

	provider, model := cfg.Provider, cfg.Model
	creds := maps.Clone(cfg.Credentials())

	if db != nil {
		c.Settings = store.NewSettingsRepo(db)
		if err := c.Settings.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		saved, err := c.Settings.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if saved.Provider != "" {
			provider, model = saved.Provider, saved.Model
		}
		// keys set through the API outlive the environment
		for p, k := range saved.Credentials {
			if strings.TrimSpace(k) != "" {
				creds[p] = k
			}
		}
	}

	opts = append([]analysis.Option{analysis.WithCredentials(creds)}, opts...)
	c.Service = analysis.NewService(provider, model, opts...)
	c.Analyzer = question.NewAnalyzer(c.Service)

	c.Pool = worker.NewPool(cfg.Workers)
	c.Pool.Start()

	info := c.Service.CurrentModelInfo()
	logger.WithFields(logrus.Fields{
		"provider": info.Provider,
		"model":    info.Model,
		"workers":  cfg.Workers,
	}).Info("analysis service ready")
	return c, nil
}

// Close drains the worker pool and closes the database.
func (c *Container) Close() {
	c.Pool.Close()
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logger.WithError(err).Warn("db close")
		}
	}
}
