package main

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nclamvn/prismy-production-sub002/internal/api"
	"github.com/nclamvn/prismy-production-sub002/internal/config"
	"github.com/nclamvn/prismy-production-sub002/internal/health"
	"github.com/nclamvn/prismy-production-sub002/internal/metrics"
	"github.com/nclamvn/prismy-production-sub002/internal/retry"
	"github.com/nclamvn/prismy-production-sub002/internal/schedule"
	"github.com/nclamvn/prismy-production-sub002/internal/store"
	"github.com/nclamvn/prismy-production-sub002/internal/syncer"
	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workspace API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			logger.Error().Err(err).Msg("failed to load config")
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("auth_mode", cfg.AuthMode).
		Str("sync_mode", cfg.SyncMode).
		Str("version", version).
		Msg("starting workspace service")

	db, err := store.New(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()

	checker := health.NewChecker(logger)
	checker.Register("store", health.PingCheck(db.Ping))

	// Trackers outlive request contexts; they stop through manager.Close.
	manager := workspace.NewManager(context.Background(), cfg.MaxWorkspaces, cfg.Workspace(), buildSyncer(cfg, db, logger), logger)
	manager.SetRecorder(m)
	manager.FlushTimeout = shutdownTimeout
	if cfg.SyncMode == config.SyncStore || cfg.SyncMode == config.SyncBoth {
		manager.SetRestorer(syncer.NewStore(db, logger))
	}
	checker.Register("sync", syncHealth(manager))

	retention := schedule.NewRepeating("retention", cfg.RetentionInterval, func(ctx context.Context) {
		pruneOnce(ctx, db, cfg.Retention, m, logger)
	}, logger)
	if err := retention.Start(ctx); err != nil {
		return err
	}

	srv := api.NewServer(api.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		Auth: api.AuthConfig{
			Mode:      cfg.AuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.JWTSecret,
			JWTIssuer: cfg.JWTIssuer,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins: strings.Join(cfg.CORSOriginList(), ","),
		Modes:       cfg.Modes,
	}, manager, db, checker, m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gracefully")
		return srv.Shutdown()
	})
	err = g.Wait()

	retention.Stop()
	manager.Close()

	logger.Info().Msg("workspace service stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// syncHealth reports degraded while any live workspace failed its last sync.
func syncHealth(manager *workspace.Manager) health.CheckFunc {
	return func(context.Context) health.Status {
		if manager.ConnectionSummary()[workspace.StatusDisconnected] > 0 {
			return health.StatusDegraded
		}
		return health.StatusOK
	}
}

func buildSyncer(cfg *config.Config, db *store.Store, logger zerolog.Logger) workspace.Syncer {
	httpSyncer := func() workspace.Syncer {
		rc := retry.DefaultConfig()
		rc.MaxAttempts = cfg.SyncRetries
		return syncer.NewHTTP(cfg.SyncURL, cfg.SyncToken, cfg.SyncTimeout, rc, logger)
	}

	switch cfg.SyncMode {
	case config.SyncHTTP:
		return httpSyncer()
	case config.SyncStore:
		return syncer.NewStore(db, logger)
	case config.SyncBoth:
		return syncer.Multi{syncer.NewStore(db, logger), httpSyncer()}
	default:
		return syncer.Nop{}
	}
}
