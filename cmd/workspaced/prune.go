package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nclamvn/prismy-production-sub002/internal/metrics"
	"github.com/nclamvn/prismy-production-sub002/internal/store"
)

var pruneMaxAge time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete persisted workspace history older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			logger.Error().Err(err).Msg("failed to load config")
			return err
		}
		maxAge := cfg.Retention
		if pruneMaxAge > 0 {
			maxAge = pruneMaxAge
		}

		db, err := store.New(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		return pruneOnce(cmd.Context(), db, maxAge, nil, logger)
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 0, "override RETENTION for this run")
}

// pruneOnce runs one retention pass. m may be nil.
func pruneOnce(ctx context.Context, db *store.Store, maxAge time.Duration, m *metrics.Metrics, logger zerolog.Logger) error {
	res, err := db.RunRetention(ctx, maxAge)
	if err != nil {
		logger.Error().Err(err).Msg("retention failed")
		return err
	}
	if m != nil {
		m.RetentionRemoved("activities", res.Activities)
		m.RetentionRemoved("operations", res.Operations)
		m.RetentionRemoved("snapshots", res.Snapshots)
	}

	rep, err := report(ctx, db)
	if err != nil {
		logger.Warn().Err(err).Msg("database report incomplete")
	}
	if m != nil {
		m.StoreReported(rep.Snapshots, rep.SizeBytes)
	}

	logger.Info().
		Int64("activities", res.Activities).
		Int64("operations", res.Operations).
		Int64("snapshots", res.Snapshots).
		Dur("max_age", maxAge).
		Int("workspaces_stored", rep.Snapshots).
		Int64("db_size_bytes", rep.SizeBytes).
		Msg("retention pass complete")
	return nil
}

// storeReport is the database summary logged after each retention pass.
type storeReport struct {
	Snapshots int
	SizeBytes int64
}

func report(ctx context.Context, db *store.Store) (storeReport, error) {
	var rep storeReport
	n, err := db.CountSnapshots(ctx)
	if err != nil {
		return rep, err
	}
	rep.Snapshots = n
	size, err := db.DBSizeBytes()
	if err != nil {
		return rep, err
	}
	rep.SizeBytes = size
	return rep, nil
}
