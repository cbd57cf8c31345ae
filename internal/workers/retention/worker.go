// Package retention prunes terminal pending transactions past the
// configured retention window.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/infrastructure/config"
)

// PendingPruner deletes old terminal records
type PendingPruner interface {
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Worker struct {
	pending       PendingPruner
	retentionDays int
	schedule      string
	cron          *cron.Cron
	logger        *zap.Logger
}

func NewWorker(pending PendingPruner, cfg config.MonitorConfig, logger *zap.Logger) *Worker {
	return &Worker{
		pending:       pending,
		retentionDays: cfg.RetentionDays,
		schedule:      cfg.CleanupSchedule,
		cron:          cron.New(),
		logger:        logger,
	}
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
		deleted, err := w.pending.DeleteTerminalOlderThan(ctx, cutoff)
		if err != nil {
			w.logger.Error("Failed to prune terminal transactions", zap.Error(err))
			return
		}
		if deleted > 0 {
			w.logger.Info("Pruned terminal transactions",
				zap.Int64("deleted", deleted),
				zap.Time("cutoff", cutoff))
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Retention worker started",
		zap.String("schedule", w.schedule),
		zap.Int("retention_days", w.retentionDays))
	return nil
}

func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("Retention worker stopped")
}
