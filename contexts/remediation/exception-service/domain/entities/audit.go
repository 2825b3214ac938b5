package entities

import "time"

type AuditEventType string

const (
	AuditEventCreated   AuditEventType = "created"
	AuditEventApproved  AuditEventType = "approved"
	AuditEventRejected  AuditEventType = "rejected"
	AuditEventCancelled AuditEventType = "cancelled"
	AuditEventExpired   AuditEventType = "expired"
)

// AuditEvent is one immutable record of one committed transition.
// Actor identity is denormalized so later deletion of the identity does not
// break audit readability.
type AuditEvent struct {
	EventID   string
	RequestID string
	EventType AuditEventType
	ActorID   string
	ActorName string
	OldStatus RequestStatus
	NewStatus RequestStatus
	Context   string
	CreatedAt time.Time
}
