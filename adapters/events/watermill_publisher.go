package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/veritasvault/vv-auth/ports"
)

// AuditTopic is the topic audit events are published on.
const AuditTopic = "vvauth.audit"

// WatermillPublisher implements the EventPublisher interface using
// Watermill, fanning audit events out to other instances.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     AuditTopic,
	}
}

// PublishAuditEvent publishes an audit event record.
func (p *WatermillPublisher) PublishAuditEvent(ctx context.Context, ev ports.AuditEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
