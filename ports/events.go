package ports

import "context"

// EventPublisher fans audit events out to other instances.
type EventPublisher interface {
	PublishAuditEvent(ctx context.Context, ev AuditEvent) error
}
