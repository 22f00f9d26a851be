package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/messaging"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

// maxRetryDelay caps the exponential backoff between publish attempts.
const maxRetryDelay = time.Hour

type OutboxProcessorConfig struct {
	Channel       string
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Validate reports settings the processor cannot run with.
func (c OutboxProcessorConfig) Validate() error {
	switch {
	case c.Channel == "":
		return fmt.Errorf("outbox channel is required")
	case c.BatchSize <= 0:
		return fmt.Errorf("BatchSize must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("PollInterval must be greater than 0")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("RetryAttempts must be greater than 0")
	case c.RetryDelay <= 0:
		return fmt.Errorf("RetryDelay must be greater than 0")
	}
	return nil
}

// OutboxProcessor relays committed outbox events to the message broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start polls until ctx is cancelled. A full batch is followed immediately
// by another poll so a backlog drains without waiting for the ticker.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel, "batch_size", p.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			for {
				n, err := p.ProcessBatch(ctx)
				if err != nil {
					p.logger.Error(err, "Failed to process events")
					break
				}
				if n < p.config.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessBatch handles one batch of due events and returns how many were claimed.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	start := time.Now()
	n, err := p.repo.ProcessPending(ctx, p.config.BatchSize, p.handle)
	p.metrics.ObserveDB("process_outbox", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to process pending events: %w", err)
	}

	pending, err := p.repo.CountPending(ctx)
	if err != nil {
		p.logger.Warn("Failed to count pending outbox events", "error", err.Error())
	} else {
		p.metrics.OutboxBacklog.Set(float64(pending))
	}
	return n, nil
}

func (p *OutboxProcessor) handle(ctx context.Context, event *model.OutboxEvent) repository.OutboxOutcome {
	msg := messaging.Message{
		ID:         event.ID.String(),
		Type:       event.EventType,
		EntityType: event.EntityType,
		EntityID:   event.EntityID.String(),
		Payload:    event.Payload,
		OccurredAt: event.CreatedAt,
	}

	err := p.broker.Publish(ctx, p.config.Channel, msg)
	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		return repository.OutboxOutcome{Status: model.OutboxStatusProcessed}
	}

	errStr := err.Error()
	attempt := event.RetryCount + 1
	if attempt >= p.config.RetryAttempts {
		p.metrics.OutboxEventsFailed.Inc()
		p.logger.Error(err, "Giving up on outbox event",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"attempts", attempt)
		return repository.OutboxOutcome{Status: model.OutboxStatusFailed, ErrorMessage: &errStr}
	}

	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	retryAt := p.now().Add(p.backoff(event.RetryCount))
	p.logger.Warn("Outbox publish failed, will retry",
		"event_id", event.ID.String(),
		"event_type", event.EventType,
		"attempt", attempt,
		"retry_at", retryAt,
		"error", errStr)
	return repository.OutboxOutcome{Status: model.OutboxStatusRetry, ErrorMessage: &errStr, RetryAt: &retryAt}
}

// backoff doubles RetryDelay for every earlier failure.
func (p *OutboxProcessor) backoff(retries int) time.Duration {
	d := time.Duration(float64(p.config.RetryDelay) * math.Pow(2, float64(retries)))
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
