package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	application "waivery/contexts/remediation/exception-service/application"
	"waivery/contexts/remediation/exception-service/ports"
)

const reminderWindow = 7 * 24 * time.Hour

// ExpirationSweeper expires approved requests past their expiry and emits a
// one-time "expiring within 7 days" reminder per request. The reminded set
// lives in process memory; a restart may repeat at most one reminder per
// request, which is an accepted trade-off, not a correctness requirement.
type ExpirationSweeper struct {
	Service application.Service
	Repo    ports.RequestRepository
	Outbox  ports.OutboxWriter
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Logger  *slog.Logger

	// DisableReminders turns off the reminder pass; expiry still runs.
	DisableReminders bool

	mu       sync.Mutex
	reminded map[string]struct{}
}

func (e *ExpirationSweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(e.Logger)

	expired, err := e.Service.ExpireDueRequests(ctx)
	if err != nil {
		logger.Error("expiry sweep failed",
			"event", "exception_expiry_sweep_failed",
			"module", "remediation/exception-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if expired > 0 {
		logger.Info("expiry sweep completed",
			"event", "exception_expiry_sweep_completed",
			"module", "remediation/exception-service",
			"layer", "worker",
			"expired_count", expired,
		)
	}

	if e.DisableReminders {
		return nil
	}
	return e.remindExpiring(ctx)
}

func (e *ExpirationSweeper) remindExpiring(ctx context.Context) error {
	logger := application.ResolveLogger(e.Logger)
	now := time.Now().UTC()
	if e.Clock != nil {
		now = e.Clock.Now().UTC()
	}

	upcoming, err := e.Repo.ListApprovedExpiringBy(ctx, now.Add(reminderWindow))
	if err != nil {
		logger.Error("expiry reminder lookup failed",
			"event", "exception_expiry_reminder_lookup_failed",
			"module", "remediation/exception-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	for _, request := range upcoming {
		if !request.ExpiresAt.After(now) {
			// Past due, handled by the expiry pass.
			continue
		}
		if e.alreadyReminded(request.RequestID) {
			continue
		}

		if err := e.appendReminderOutbox(ctx, request.RequestID, request.RequesterID, request.ExpiresAt); err != nil {
			logger.Error("expiry reminder emit failed",
				"event", "exception_expiry_reminder_failed",
				"module", "remediation/exception-service",
				"layer", "worker",
				"request_id", request.RequestID,
				"error", err.Error(),
			)
			continue
		}
		e.markReminded(request.RequestID)

		logger.Info("expiry reminder emitted",
			"event", "exception_expiry_reminder_emitted",
			"module", "remediation/exception-service",
			"layer", "worker",
			"request_id", request.RequestID,
			"expires_at", request.ExpiresAt.UTC().Format(time.RFC3339),
		)
	}
	return nil
}

func (e *ExpirationSweeper) appendReminderOutbox(ctx context.Context, requestID string, requesterID string, expiresAt time.Time) error {
	if e.Outbox == nil {
		return nil
	}
	eventID, err := e.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(map[string]any{
		"request_id":   requestID,
		"requester_id": requesterID,
		"expires_at":   expiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if e.Clock != nil {
		now = e.Clock.Now().UTC()
	}
	return e.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        application.EventExceptionExpiring,
		OccurredAt:       now,
		SourceService:    "exception-service",
		TraceID:          requestID,
		SchemaVersion:    1,
		PartitionKeyPath: "request_id",
		PartitionKey:     requestID,
		Data:             data,
	})
}

func (e *ExpirationSweeper) alreadyReminded(requestID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reminded == nil {
		return false
	}
	_, ok := e.reminded[requestID]
	return ok
}

func (e *ExpirationSweeper) markReminded(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reminded == nil {
		e.reminded = make(map[string]struct{})
	}
	e.reminded[requestID] = struct{}{}
}
