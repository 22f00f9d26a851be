package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
)

var outboxRow = []string{"id", "event_type", "entity_type", "entity_id", "payload", "status", "error_message",
	"retry_count", "retry_at", "created_at", "processed_at", "updated_at"}

func TestOutboxRepository_ProcessPending(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewOutboxRepository(base)

	okID, failID := uuid.New(), uuid.New()
	retryAt := fixedNow.Add(time.Minute)
	errMsg := "broker down"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(fixedNow, 10).
		WillReturnRows(sqlmock.NewRows(outboxRow).
			AddRow(okID, model.EventPatientCreated, "patient", uuid.New(), []byte(`{}`), "PENDING", nil, 0, nil, fixedNow, nil, fixedNow).
			AddRow(failID, model.EventReportCreated, "report", uuid.New(), []byte(`{}`), "RETRY", nil, 1, nil, fixedNow, nil, fixedNow))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events")).
		WithArgs("PROCESSED", nil, nil, fixedNow, okID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events")).
		WithArgs("RETRY", errMsg, retryAt, fixedNow, failID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen []uuid.UUID
	handled, err := repo.ProcessPending(context.Background(), 10, func(_ context.Context, evt *model.OutboxEvent) repository.OutboxOutcome {
		seen = append(seen, evt.ID)
		if evt.ID == okID {
			return repository.OutboxOutcome{Status: model.OutboxStatusProcessed}
		}
		return repository.OutboxOutcome{Status: model.OutboxStatusRetry, ErrorMessage: &errMsg, RetryAt: &retryAt}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []uuid.UUID{okID, failID}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_CountPending(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewOutboxRepository(base)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM outbox_events WHERE status IN ('PENDING', 'RETRY')")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestOutboxRepository_DeleteProcessedBefore(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewOutboxRepository(base)
	cutoff := fixedNow.AddDate(0, 0, -7)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM outbox_events")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteProcessedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
