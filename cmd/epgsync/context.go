package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/cache"
	"github.com/voyagen/epgsync/internal/config"
	"github.com/voyagen/epgsync/internal/logging"
	"github.com/voyagen/epgsync/internal/passlock"
	"github.com/voyagen/epgsync/internal/service"
	"github.com/voyagen/epgsync/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		var cfg *config.Config
		var err error
		if path != "" {
			cfg, err = config.LoadFromFile(path)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			c.configErr = fmt.Errorf("config: %w", err)
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.LogLevel = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// app bundles the long-lived dependencies a command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *store.Postgres
	redis  *cache.Redis // nil when REDIS_URL is not set
	store  store.Store
	svc    *service.Service
	rec    *service.Reconciler
	runner *service.Runner
}

// open connects to Postgres and, when configured, Redis. With Redis the
// store is cached and the pass lock and run records are shared between
// processes; otherwise a lock file in LockDir guards passes.
func (c *commandContext) open(ctx context.Context) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.newLogger(cfg)
	if err != nil {
		return nil, err
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("db: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, pg: pg, store: pg}

	var lock passlock.Locker
	var runs service.RunStore
	if cfg.RedisURL != "" {
		rds, err := cache.New(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rds
		if err := rds.Ping(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.store = store.NewCachedStore(pg, rds, logger)
		lock = passlock.NewRedisLocker(rds)
		runs = service.NewRedisRuns(rds)
		logger.Debug("redis connected", zap.String("mode", "cached"))
	} else {
		fl, err := passlock.NewFileLocker(cfg.LockDir)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("pass lock: %w", err)
		}
		lock = fl
		runs = service.NewMemoryRuns()
		logger.Debug("redis disabled", zap.String("lock_file", fl.Path()))
	}

	a.svc = service.New(a.store, logger, service.Options{
		UserAgent:    cfg.UserAgent,
		FetchTimeout: cfg.Timeout,
	})
	a.rec = service.NewReconciler(a.store, lock, logger, service.ReconcilerOptions{
		UpdateTimeout: cfg.UpdateTimeout,
		Concurrency:   cfg.UpdateConcurrency,
	})
	a.runner = service.NewRunner(a.rec, runs, a.redis, logger)
	return a, nil
}

func (a *app) close() {
	if a.runner != nil {
		a.runner.Wait()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.pg.Close()
	_ = a.logger.Sync()
}

// withApp opens the app for the duration of fn.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app) error) error {
	a, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
