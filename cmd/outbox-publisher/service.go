package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
}

// Service drains vendor subscription events from the outbox table to
// Pub/Sub. Each batch runs in one transaction so claimed rows stay locked
// until their state is written back.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = newTopicPublishers(params.PubSub).get
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		batchSize:        positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:      positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is canceled. Batch errors back off exponentially;
// an empty poll sleeps one interval.
func (s *Service) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		wait := time.Duration(0)
		switch {
		case err != nil:
			s.logg.Error(s.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = withJitter(backoff)
		case processed:
			backoff = s.pollInterval
		default:
			backoff = s.pollInterval
			wait = withJitter(s.pollInterval)
		}
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// disposition is what happens to one claimed row after a publish attempt.
type disposition struct {
	err error
	// dlq is set when the row is parked instead of retried.
	dlq    enums.OutboxDLQErrorReason
	fields map[string]any
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.attempt(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// attempt resolves and publishes one row without touching the database.
func (s *Service) attempt(ctx context.Context, event models.OutboxEvent) disposition {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return disposition{err: err, dlq: dlqReasonFor(err), fields: s.eventFields(event, nil)}
	}

	fields := s.eventFields(event, resolved)
	err = s.publishResolved(ctx, event, resolved)
	if err == nil {
		return disposition{fields: fields}
	}
	if reason := dlqReasonFor(err); reason != "" {
		return disposition{err: err, dlq: reason, fields: fields}
	}

	next := event.AttemptCount + 1
	fields["attempt_count"] = next
	if next >= s.maxAttempts {
		return disposition{
			err:    fmt.Errorf("max publish attempts reached: %w", err),
			dlq:    enums.OutboxDLQReasonMaxAttempts,
			fields: fields,
		}
	}
	return disposition{err: err, fields: fields}
}

// dlqReasonFor classifies a non-retryable failure; retryable errors yield "".
func dlqReasonFor(err error) enums.OutboxDLQErrorReason {
	var nonRetry registry.NonRetryableError
	switch {
	case !errors.As(err, &nonRetry):
		return ""
	case errors.Is(err, registry.ErrUnsupportedEvent):
		return enums.OutboxDLQReasonUnsupportedEvent
	case errors.Is(err, registry.ErrMalformedRow):
		return enums.OutboxDLQReasonMalformedPayload
	case errors.Is(err, errNoPublisher):
		return enums.OutboxDLQReasonNoPublisher
	default:
		return enums.OutboxDLQReasonNonRetryable
	}
}

// settle writes the disposition back inside the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d disposition) error {
	logCtx := s.logg.WithFields(ctx, d.fields)
	switch {
	case d.err == nil:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
		return nil

	case d.dlq == "":
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return nil
	}

	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"error":        d.err.Error(),
		"error_reason": d.dlq,
		"replayable":   d.dlq.Replayable(),
	})
	s.logg.Warn(logCtx, "outbox event parked in dlq")

	msg := d.err.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   d.dlq,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, d.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"vendor_id":     event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if resolved != nil {
		fields["event_id"] = resolved.Envelope.EventID
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		fields["topic"] = resolved.Descriptor.Topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, max)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
