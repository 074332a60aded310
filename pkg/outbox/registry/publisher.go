package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// Resolve failure classes. Both arrive wrapped in NonRetryableError.
var (
	ErrUnsupportedEvent = errors.New("unsupported outbox event")
	ErrMalformedRow     = errors.New("malformed outbox row")
)

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	vendorTopic := strings.TrimSpace(cfg.VendorEventsTopic)
	if vendorTopic == "" {
		return nil, fmt.Errorf("vendor events topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	reg.register(EventDescriptor{
		EventType:      enums.EventVendorSubscriptionChanged,
		AggregateType:  enums.AggregateVendor,
		Topic:          vendorTopic,
		PayloadFactory: func() interface{} { return &payloads.VendorSubscriptionChangedEvent{} },
	})
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Topics lists every topic an event can be routed to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	topics := []string{}
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%w: type %s", ErrUnsupportedEvent, event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%w: aggregate %s for %s", ErrUnsupportedEvent, event.AggregateType, event.EventType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, malformed("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, malformed("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, malformed("decode %s payload: %v", event.EventType, err)
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

func malformed(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf("%w: %s", ErrMalformedRow, fmt.Sprintf(format, args...)))
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
