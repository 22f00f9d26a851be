package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/pkg/logger"
)

// RetentionWorker prunes audit logs and delivered outbox events.
// A retention of zero days keeps those rows forever.
type RetentionWorker struct {
	audit               repository.AuditRepository
	outbox              repository.OutboxRepository
	auditRetentionDays  int
	outboxRetentionDays int
	cleanupInterval     time.Duration
	logger              *logger.Logger
	now                 func() time.Time
}

func NewRetentionWorker(
	audit repository.AuditRepository,
	outbox repository.OutboxRepository,
	auditRetentionDays, outboxRetentionDays int,
	cleanupInterval time.Duration,
	logger *logger.Logger,
) *RetentionWorker {
	return &RetentionWorker{
		audit:               audit,
		outbox:              outbox,
		auditRetentionDays:  auditRetentionDays,
		outboxRetentionDays: outboxRetentionDays,
		cleanupInterval:     cleanupInterval,
		logger:              logger,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "Retention cleanup failed")
			}
		}
	}
}

// Cleanup runs one pruning pass.
func (w *RetentionWorker) Cleanup(ctx context.Context) error {
	now := w.now()

	if w.auditRetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -w.auditRetentionDays)
		rows, err := w.audit.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup audit logs: %w", err)
		}
		w.logger.Info("Cleaned up audit logs", "rows", rows, "cutoff", cutoff)
	}

	if w.outboxRetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -w.outboxRetentionDays)
		rows, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup outbox events: %w", err)
		}
		w.logger.Info("Cleaned up processed outbox events", "rows", rows, "cutoff", cutoff)
	}
	return nil
}
