package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/metrics"
)

type profileCounter interface {
	Count(ctx context.Context) (total int, active int, err error)
}

type rowCounter interface {
	Count(ctx context.Context) (int, error)
}

// StatsWorker periodically samples table sizes into the store gauges
type StatsWorker struct {
	profiles      profileCounter
	relationships rowCounter
	locations     rowCounter
	logger        *slog.Logger
	interval      time.Duration
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(
	profiles profileCounter,
	relationships rowCounter,
	locations rowCounter,
	logger *slog.Logger,
	interval time.Duration,
) *StatsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatsWorker{
		profiles:      profiles,
		relationships: relationships,
		locations:     locations,
		logger:        logger,
		interval:      interval,
	}
}

// Start samples once immediately, then on every tick until ctx is done
func (w *StatsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("stats worker started", slog.Duration("interval", w.interval))
	w.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stats worker stopped")
			return
		case <-ticker.C:
			w.collect(ctx)
		}
	}
}

func (w *StatsWorker) collect(ctx context.Context) {
	total, active, err := w.profiles.Count(ctx)
	if err != nil {
		w.logger.Error("failed to count profiles", slog.String("error", err.Error()))
	} else {
		metrics.SetStoreRows("profiles", total)
		metrics.SetActiveProfiles(active)
	}

	if n, err := w.relationships.Count(ctx); err != nil {
		w.logger.Error("failed to count relationships", slog.String("error", err.Error()))
	} else {
		metrics.SetStoreRows("tracking_relationships", n)
	}

	if n, err := w.locations.Count(ctx); err != nil {
		w.logger.Error("failed to count locations", slog.String("error", err.Error()))
	} else {
		metrics.SetStoreRows("user_locations", n)
	}
}
