package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox/registry"
)

var errNoPublisher = errors.New("publisher not configured")

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers hands out one ordered publisher per topic for the life of
// the process.
type topicPublishers struct {
	mu     sync.Mutex
	client pubSubClient
	byName map[string]publisher
}

func newTopicPublishers(client pubSubClient) *topicPublishers {
	return &topicPublishers{client: client, byName: map[string]publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.byName[topic]; ok {
		return pub
	}
	gcpPub := t.client.Publisher(topic)
	if gcpPub == nil {
		return nil
	}
	// vendor events are keyed by vendor id so consumers see them in write order
	gcpPub.EnableMessageOrdering = true
	pub := &gcpPublisher{Publisher: gcpPub}
	t.byName[topic] = pub
	return pub
}

// vendorMessage builds the Pub/Sub message for a resolved row. The ordering
// key is the vendor aggregate id.
func vendorMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	addPayloadAttributes(attrs, resolved.Payload)
	return &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: event.AggregateID.String(),
	}
}

// addPayloadAttributes copies routing fields consumers filter on.
func addPayloadAttributes(attrs map[string]string, payload any) {
	evt, ok := payload.(*payloads.VendorSubscriptionChangedEvent)
	if !ok || evt == nil {
		return
	}
	attrs["vendor_id"] = evt.VendorID.String()
	attrs["user_id"] = evt.UserID.String()
	if evt.Source != "" {
		attrs["source"] = string(evt.Source)
	}
	if evt.Plan == nil {
		attrs["cleared"] = "true"
	}
}

// publishResolved sends one row and waits for the server ack.
func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w for topic %s", errNoPublisher, topic))
	}

	msg := vendorMessage(event, resolved)
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		if resumer, ok := pub.(interface{ ResumePublish(string) }); ok {
			// an ordering key stays paused after a failure until resumed
			resumer.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return gcpPublishResult{res: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	res *gcppubsub.PublishResult
}

func (r gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	return r.res.Get(ctx)
}
