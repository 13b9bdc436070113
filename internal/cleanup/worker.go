package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired challenges and tickets
type Sweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Worker sweeps storage periodically. Expiry is checked on every read, so
// a stopped worker only costs storage, never correctness.
type Worker struct {
	sweeper  Sweeper
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewWorker creates a new cleanup worker
func NewWorker(sweeper Sweeper, logger *slog.Logger, interval time.Duration) *Worker {
	return &Worker{
		sweeper:  sweeper,
		logger:   logger.With("component", "cleanup_worker"),
		interval: interval,
		timeout:  30 * time.Second,
	}
}

// Run starts the worker loop and blocks until ctx is done
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("cleanup worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	removed, err := w.sweeper.CleanupExpired(ctx)
	if err != nil {
		w.logger.Error("failed to cleanup expired entries", "error", err, "removed", removed)
		return
	}

	w.logger.Debug("cleanup completed", "removed", removed)
}
