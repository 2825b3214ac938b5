package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"waivery/contexts/remediation/exception-service/domain/entities"
	"waivery/contexts/remediation/exception-service/ports"
)

const (
	TopicExceptionTransitions = "exception.transitions"

	EventExceptionCreated   = "exception.created"
	EventExceptionApproved  = "exception.approved"
	EventExceptionRejected  = "exception.rejected"
	EventExceptionCancelled = "exception.cancelled"
	EventExceptionExpired   = "exception.expired"
	EventExceptionExpiring  = "exception.expiring"
)

// emitTransition publishes the post-commit side effects of one transition:
// the audit record, the outbox event and the pending-count update. Every
// failure here is logged, never surfaced as failure of the transition.
func (s Service) emitTransition(
	ctx context.Context,
	request entities.ExceptionRequest,
	eventType entities.AuditEventType,
	actor ports.Identity,
	oldStatus entities.RequestStatus,
	newStatus entities.RequestStatus,
	auditContext string,
) {
	now := s.now()

	if s.Audit != nil {
		s.Audit.Record(entities.AuditEvent{
			EventID:   s.sideEffectID(ctx, request, string(eventType)),
			RequestID: request.RequestID,
			EventType: eventType,
			ActorID:   actor.UserID,
			ActorName: actor.DisplayName,
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Context:   auditContext,
			CreatedAt: now,
		})
	}

	if s.Notifier != nil {
		s.Notifier.OnTransition(oldStatus, newStatus)
	}

	s.appendTransitionOutbox(ctx, request, eventType, actor, oldStatus, newStatus, now)
}

func (s Service) appendTransitionOutbox(
	ctx context.Context,
	request entities.ExceptionRequest,
	eventType entities.AuditEventType,
	actor ports.Identity,
	oldStatus entities.RequestStatus,
	newStatus entities.RequestStatus,
	occurredAt time.Time,
) {
	if s.Outbox == nil {
		return
	}

	data, err := json.Marshal(map[string]any{
		"request_id":    request.RequestID,
		"finding_id":    request.FindingID,
		"scope":         string(request.Scope),
		"old_status":    string(oldStatus),
		"new_status":    string(newStatus),
		"actor_id":      actor.UserID,
		"actor_name":    actor.DisplayName,
		"auto_approved": request.AutoApproved,
		"expires_at":    request.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	envelope := ports.EventEnvelope{
		EventID:          s.sideEffectID(ctx, request, "outbox-"+string(eventType)),
		EventType:        transitionEventType(eventType),
		OccurredAt:       occurredAt,
		SourceService:    "exception-service",
		TraceID:          request.RequestID,
		SchemaVersion:    1,
		PartitionKeyPath: "request_id",
		PartitionKey:     request.RequestID,
		Data:             data,
	}
	if err := s.Outbox.AppendOutbox(ctx, envelope); err != nil {
		ResolveLogger(s.Logger).Error("transition outbox append failed",
			"event", "exception_outbox_append_failed",
			"module", "remediation/exception-service",
			"layer", "application",
			"request_id", request.RequestID,
			"event_type", envelope.EventType,
			"error", err.Error(),
		)
	}
}

func transitionEventType(eventType entities.AuditEventType) string {
	switch eventType {
	case entities.AuditEventCreated:
		return EventExceptionCreated
	case entities.AuditEventApproved:
		return EventExceptionApproved
	case entities.AuditEventRejected:
		return EventExceptionRejected
	case entities.AuditEventCancelled:
		return EventExceptionCancelled
	case entities.AuditEventExpired:
		return EventExceptionExpired
	default:
		return "exception." + string(eventType)
	}
}

// sideEffectID prefers a generated id and falls back to a deterministic one
// so audit and outbox writes never abort on id generation failure.
func (s Service) sideEffectID(ctx context.Context, request entities.ExceptionRequest, suffix string) string {
	id, err := s.IDGen.NewID(ctx)
	if err != nil || strings.TrimSpace(id) == "" {
		return fmt.Sprintf("%s-%s-v%d", request.RequestID, suffix, request.Version)
	}
	return strings.TrimSpace(id)
}
