package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) ProcessPending(ctx context.Context, limit int, handle repository.OutboxHandler) (int, error) {
	selectQuery := `
		SELECT id, event_type, entity_type, entity_id, payload, status, error_message,
			retry_count, retry_at, created_at, processed_at, updated_at
		FROM outbox_events
		WHERE status IN ('PENDING', 'RETRY')
		AND (retry_at IS NULL OR retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	updateQuery := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_at = $3,
			retry_count = retry_count + CASE WHEN $1 = 'PROCESSED' THEN 0 ELSE 1 END,
			processed_at = CASE WHEN $1 = 'PROCESSED' THEN $4 ELSE processed_at END,
			updated_at = $4
		WHERE id = $5
	`

	handled := 0
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var events []*model.OutboxEvent
		if err := tx.SelectContext(ctx, &events, selectQuery, r.now(), limit); err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, evt := range events {
			outcome := handle(ctx, evt)
			_, err := tx.ExecContext(ctx, updateQuery,
				string(outcome.Status),
				outcome.ErrorMessage,
				outcome.RetryAt,
				r.now(),
				evt.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to update event %s: %w", evt.ID, err)
			}
			handled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return handled, nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM outbox_events WHERE status IN ('PENDING', 'RETRY')`)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return n, nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'PROCESSED'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
