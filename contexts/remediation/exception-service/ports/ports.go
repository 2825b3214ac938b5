package ports

import (
	"context"
	"time"

	"waivery/contexts/remediation/exception-service/domain/entities"
	contractsv1 "waivery/contracts/gen/events/v1"
)

// RequestRepository persists exception requests. Decision writes are
// conditioned on the version read; a write against a stale version fails
// with domainerrors.ErrVersionConflict instead of blocking.
type RequestRepository interface {
	CreateRequest(ctx context.Context, request entities.ExceptionRequest) error
	GetRequest(ctx context.Context, requestID string) (entities.ExceptionRequest, error)
	UpdateRequest(ctx context.Context, request entities.ExceptionRequest, expectedVersion int) error
	FindActiveRequest(ctx context.Context, findingID string, scope entities.WaiverScope) (entities.ExceptionRequest, bool, error)
	ListByRequester(ctx context.Context, requesterID string, status *entities.RequestStatus, page int, pageSize int) ([]entities.ExceptionRequest, int, error)
	ListByStatus(ctx context.Context, status entities.RequestStatus, page int, pageSize int) ([]entities.ExceptionRequest, int, error)
	ListApprovedExpiringBy(ctx context.Context, cutoff time.Time) ([]entities.ExceptionRequest, error)
	ListForExport(ctx context.Context, filter ExportFilter) ([]entities.ExceptionRequest, error)
	CountByStatus(ctx context.Context, status entities.RequestStatus) (int, error)
}

type ExportFilter struct {
	Status      *entities.RequestStatus
	RequesterID string
	FindingID   string
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// AuditLog is append-only. Rows are never updated or deleted by the
// application; retention is an out-of-band operational task.
type AuditLog interface {
	AppendAuditEvent(ctx context.Context, event entities.AuditEvent) error
	ListAuditEvents(ctx context.Context, requestID string) ([]entities.AuditEvent, error)
}

// Finding is the inventory's view of one security issue on one asset.
type Finding struct {
	FindingID string
	AssetID   string
	Signature string
	Overdue   bool
}

// FindingInventory is the external collaborator that owns findings and
// consumes waiver records to suppress overdue status.
type FindingInventory interface {
	GetFinding(ctx context.Context, findingID string) (Finding, bool, error)
	ApplyWaiver(ctx context.Context, waiver entities.Waiver) error
	RevokeWaiver(ctx context.Context, key string) error
}

// Identity is the role store's view of a caller. The identity may later be
// deleted; display names are denormalized onto requests at write time.
type Identity struct {
	UserID      string
	DisplayName string
	Roles       []string
}

type IdentityDirectory interface {
	GetIdentity(ctx context.Context, userID string) (Identity, bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// PendingCountSink receives the authoritative pending count whenever it
// changes. Implementations must not block the caller.
type PendingCountSink interface {
	SetPendingCount(ctx context.Context, count int) error
}
