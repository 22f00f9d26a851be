package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/repository/mocks"
	"github.com/jwalitptl/patient-records/pkg/logger"
)

var retentionNow = time.Date(2024, 6, 30, 3, 0, 0, 0, time.UTC)

func newTestRetentionWorker(audit repository.AuditRepository, outbox repository.OutboxRepository, auditDays, outboxDays int) *RetentionWorker {
	w := NewRetentionWorker(audit, outbox, auditDays, outboxDays, time.Hour, logger.NewLogger(&logger.Config{Output: io.Discard}))
	w.now = func() time.Time { return retentionNow }
	return w
}

func TestRetentionWorker_PrunesBoth(t *testing.T) {
	audit := &mocks.AuditRepository{}
	outbox := &mocks.OutboxRepository{}
	audit.On("DeleteBefore", mock.Anything, retentionNow.AddDate(0, 0, -90)).Return(int64(12), nil)
	outbox.On("DeleteProcessedBefore", mock.Anything, retentionNow.AddDate(0, 0, -7)).Return(int64(40), nil)

	w := newTestRetentionWorker(audit, outbox, 90, 7)
	assert.NoError(t, w.Cleanup(context.Background()))
	audit.AssertExpectations(t)
	outbox.AssertExpectations(t)
}

func TestRetentionWorker_ZeroKeepsAuditLogs(t *testing.T) {
	audit := &mocks.AuditRepository{}
	outbox := &mocks.OutboxRepository{}
	outbox.On("DeleteProcessedBefore", mock.Anything, mock.Anything).Return(int64(0), nil)

	w := newTestRetentionWorker(audit, outbox, 0, 7)
	assert.NoError(t, w.Cleanup(context.Background()))
	audit.AssertNotCalled(t, "DeleteBefore", mock.Anything, mock.Anything)
}

func TestRetentionWorker_ReportsErrors(t *testing.T) {
	audit := &mocks.AuditRepository{}
	audit.On("DeleteBefore", mock.Anything, mock.Anything).Return(int64(0), errors.New("timeout"))

	w := newTestRetentionWorker(audit, &mocks.OutboxRepository{}, 30, 7)
	assert.ErrorContains(t, w.Cleanup(context.Background()), "audit logs")
}
