package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/server"
	"github.com/voyagen/epgsync/internal/service"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var skipMigrate bool
	var refreshEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Run the HTTP API. With REDIS_URL set, reads are cached and asynchronous passes " +
			"are consumed from the Redis queue by this process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !skipMigrate {
				if err := migrateDatabase(cfg); err != nil {
					return err
				}
			}
			return ctx.withApp(cmd, func(a *app) error {
				runCtx, cancel := context.WithCancel(cmd.Context())
				defer cancel()

				var wg sync.WaitGroup
				if a.redis != nil {
					wg.Add(1)
					go func() {
						defer wg.Done()
						a.runner.Work(runCtx)
					}()
				}
				if refreshEvery > 0 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						refreshLoop(runCtx, a.svc, a.logger, refreshEvery)
					}()
				}

				srv := server.New(a.svc, a.rec, a.runner, a.cfg, a.logger)
				err := srv.ListenAndServe(runCtx)
				cancel()
				wg.Wait()
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply database migrations on start")
	cmd.Flags().DurationVar(&refreshEvery, "refresh-interval", 0, "Refresh the EPG catalog on this interval (0 disables)")
	return cmd
}

// refreshLoop refreshes the catalog every interval until ctx is done.
func refreshLoop(ctx context.Context, svc *service.Service, logger *zap.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := svc.RefreshCatalog(ctx)
			if err != nil {
				logger.Warn("scheduled refresh failed", zap.Error(err))
				continue
			}
			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			logger.Info("scheduled refresh", zap.Int("sources", len(results)), zap.Int("failed", failed))
		}
	}
}
