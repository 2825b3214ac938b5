package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"waivery/contexts/remediation/exception-service/domain/entities"
	domainerrors "waivery/contexts/remediation/exception-service/domain/errors"
	"waivery/contexts/remediation/exception-service/domain/policy"
	"waivery/contexts/remediation/exception-service/ports"
)

// Service is the workflow engine. It owns every state transition of an
// exception request, resolves concurrent decisions through the store's
// version counter, and emits audit/notification side effects after commit.
type Service struct {
	Repo         ports.RequestRepository
	AuditLog     ports.AuditLog
	Identities   ports.IdentityDirectory
	Inventory    ports.FindingInventory
	Outbox       ports.OutboxWriter
	Materializer WaiverMaterializer
	Audit        *AuditRecorder
	Notifier     *PendingNotifier
	Clock        ports.Clock
	IDGen        ports.IDGenerator
	Logger       *slog.Logger
}

type CreateRequestInput struct {
	FindingID string
	Scope     entities.WaiverScope
	Reason    string
	ExpiresAt time.Time
}

func (s Service) CreateRequest(ctx context.Context, callerID string, input CreateRequestInput) (entities.ExceptionRequest, error) {
	logger := ResolveLogger(s.Logger)

	caller, err := s.resolveCaller(ctx, callerID)
	if err != nil {
		return entities.ExceptionRequest{}, err
	}

	if input.Scope != entities.ScopeSingleFinding && input.Scope != entities.ScopeSignaturePattern {
		return entities.ExceptionRequest{}, domainerrors.ErrInvalidScope
	}
	reason := policy.StripMarkup(input.Reason)
	if !policy.ValidReason(reason) {
		return entities.ExceptionRequest{}, domainerrors.ErrInvalidReason
	}

	now := s.now()
	if !policy.ValidExpiry(input.ExpiresAt, now) {
		return entities.ExceptionRequest{}, domainerrors.ErrExpiryNotInFuture
	}
	if policy.LongExpiry(input.ExpiresAt, now) {
		logger.Warn("exception expiry beyond one year",
			"event", "exception_long_expiry_requested",
			"module", "remediation/exception-service",
			"layer", "application",
			"finding_id", strings.TrimSpace(input.FindingID),
			"expires_at", input.ExpiresAt.UTC().Format(time.RFC3339),
		)
	}

	finding, found, err := s.Inventory.GetFinding(ctx, strings.TrimSpace(input.FindingID))
	if err != nil {
		return entities.ExceptionRequest{}, err
	}
	if !found {
		return entities.ExceptionRequest{}, domainerrors.ErrFindingNotFound
	}
	if !finding.Overdue {
		return entities.ExceptionRequest{}, domainerrors.ErrFindingNotOverdue
	}

	if _, exists, err := s.Repo.FindActiveRequest(ctx, finding.FindingID, input.Scope); err != nil {
		return entities.ExceptionRequest{}, err
	} else if exists {
		return entities.ExceptionRequest{}, domainerrors.ErrDuplicateActiveRequest
	}

	requestID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.ExceptionRequest{}, err
	}

	privileged := policy.IsPrivileged(caller.Roles)
	request := entities.ExceptionRequest{
		RequestID:        strings.TrimSpace(requestID),
		FindingID:        finding.FindingID,
		AssetID:          finding.AssetID,
		FindingSignature: finding.Signature,
		Scope:            input.Scope,
		Reason:           reason,
		Status:           entities.RequestStatusPending,
		RequesterID:      caller.UserID,
		RequesterName:    caller.DisplayName,
		ExpiresAt:        input.ExpiresAt.UTC(),
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	if privileged {
		request.Status = entities.RequestStatusApproved
		request.AutoApproved = true
		request.ReviewerID = caller.UserID
		request.ReviewerName = caller.DisplayName
		reviewedAt := now
		request.ReviewedAt = &reviewedAt
	}

	// The unique active-request index backs the lookup above under races:
	// two concurrent creates for the same (finding, scope) still commit
	// exactly once.
	if err := s.Repo.CreateRequest(ctx, request); err != nil {
		return entities.ExceptionRequest{}, err
	}

	if request.AutoApproved {
		s.materialize(ctx, request)
	}
	s.emitTransition(ctx, request, entities.AuditEventCreated, caller, "", request.Status, snippet(reason))

	logger.Info("exception request created",
		"event", "exception_request_created",
		"module", "remediation/exception-service",
		"layer", "application",
		"request_id", request.RequestID,
		"finding_id", request.FindingID,
		"scope", string(request.Scope),
		"status", string(request.Status),
		"auto_approved", request.AutoApproved,
	)
	return request, nil
}

func (s Service) Approve(ctx context.Context, reviewerID string, requestID string, comment string) (entities.ExceptionRequest, error) {
	reviewer, err := s.resolveReviewer(ctx, reviewerID)
	if err != nil {
		return entities.ExceptionRequest{}, err
	}

	comment = policy.StripMarkup(comment)
	if comment != "" && !policy.ValidReviewComment(comment) {
		return entities.ExceptionRequest{}, domainerrors.ErrInvalidReviewComment
	}

	request, err := s.Repo.GetRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return entities.ExceptionRequest{}, err
	}
	if request.Status != entities.RequestStatusPending {
		return entities.ExceptionRequest{}, s.rejectedAttempt(request, "approve", reviewer)
	}

	readVersion := request.Version
	now := s.now()
	oldStatus := request.Status
	request.Status = entities.RequestStatusApproved
	request.ReviewerID = reviewer.UserID
	request.ReviewerName = reviewer.DisplayName
	request.ReviewComment = comment
	request.ReviewedAt = &now
	request.UpdatedAt = now

	if err := s.Repo.UpdateRequest(ctx, request, readVersion); err != nil {
		return entities.ExceptionRequest{}, s.resolveWriteFailure(ctx, request.RequestID, err)
	}
	request.Version = readVersion + 1

	s.materialize(ctx, request)
	s.emitTransition(ctx, request, entities.AuditEventApproved, reviewer, oldStatus, request.Status, snippet(comment))

	ResolveLogger(s.Logger).Info("exception request approved",
		"event", "exception_request_approved",
		"module", "remediation/exception-service",
		"layer", "application",
		"request_id", request.RequestID,
		"reviewer_id", reviewer.UserID,
	)
	return request, nil
}

func (s Service) Reject(ctx context.Context, reviewerID string, requestID string, comment string) (entities.ExceptionRequest, error) {
	reviewer, err := s.resolveReviewer(ctx, reviewerID)
	if err != nil {
		return entities.ExceptionRequest{}, err
	}

	comment = policy.StripMarkup(comment)
	if !policy.ValidReviewComment(comment) {
		return entities.ExceptionRequest{}, domainerrors.ErrInvalidReviewComment
	}

	request, err := s.Repo.GetRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return entities.ExceptionRequest{}, err
	}
	if request.Status != entities.RequestStatusPending {
		return entities.ExceptionRequest{}, s.rejectedAttempt(request, "reject", reviewer)
	}

	readVersion := request.Version
	now := s.now()
	oldStatus := request.Status
	request.Status = entities.RequestStatusRejected
	request.ReviewerID = reviewer.UserID
	request.ReviewerName = reviewer.DisplayName
	request.ReviewComment = comment
	request.ReviewedAt = &now
	request.UpdatedAt = now

	if err := s.Repo.UpdateRequest(ctx, request, readVersion); err != nil {
		return entities.ExceptionRequest{}, s.resolveWriteFailure(ctx, request.RequestID, err)
	}
	request.Version = readVersion + 1

	s.emitTransition(ctx, request, entities.AuditEventRejected, reviewer, oldStatus, request.Status, snippet(comment))

	ResolveLogger(s.Logger).Info("exception request rejected",
		"event", "exception_request_rejected",
		"module", "remediation/exception-service",
		"layer", "application",
		"request_id", request.RequestID,
		"reviewer_id", reviewer.UserID,
	)
	return request, nil
}

func (s Service) Cancel(ctx context.Context, callerID string, requestID string) (entities.ExceptionRequest, error) {
	caller, err := s.resolveCaller(ctx, callerID)
	if err != nil {
		return entities.ExceptionRequest{}, err
	}

	request, err := s.Repo.GetRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return entities.ExceptionRequest{}, err
	}
	if !request.IsRequester(caller.UserID) {
		return entities.ExceptionRequest{}, domainerrors.ErrForbiddenActor
	}

	cancellable := request.Status == entities.RequestStatusPending ||
		(request.Status == entities.RequestStatusApproved && request.AutoApproved)
	if !cancellable {
		return entities.ExceptionRequest{}, s.rejectedAttempt(request, "cancel", caller)
	}

	readVersion := request.Version
	now := s.now()
	oldStatus := request.Status
	request.Status = entities.RequestStatusCancelled
	request.UpdatedAt = now

	if err := s.Repo.UpdateRequest(ctx, request, readVersion); err != nil {
		return entities.ExceptionRequest{}, s.resolveWriteFailure(ctx, request.RequestID, err)
	}
	request.Version = readVersion + 1

	if oldStatus == entities.RequestStatusApproved {
		s.revoke(ctx, request)
	}
	s.emitTransition(ctx, request, entities.AuditEventCancelled, caller, oldStatus, request.Status, "")

	ResolveLogger(s.Logger).Info("exception request cancelled",
		"event", "exception_request_cancelled",
		"module", "remediation/exception-service",
		"layer", "application",
		"request_id", request.RequestID,
		"previous_status", string(oldStatus),
	)
	return request, nil
}

// ExpireDueRequests transitions every approved request past its expiry to
// expired and deactivates the matching waiver. Individual failures, such as
// a stale version when a cancel races the sweep, are logged and skipped.
func (s Service) ExpireDueRequests(ctx context.Context) (int, error) {
	logger := ResolveLogger(s.Logger)
	now := s.now()

	due, err := s.Repo.ListApprovedExpiringBy(ctx, now)
	if err != nil {
		return 0, err
	}

	system := ports.Identity{UserID: "system", DisplayName: "Expiration Sweeper"}
	expired := 0
	for _, request := range due {
		readVersion := request.Version
		oldStatus := request.Status
		request.Status = entities.RequestStatusExpired
		request.UpdatedAt = now

		if err := s.Repo.UpdateRequest(ctx, request, readVersion); err != nil {
			logger.Warn("expiry sweep skipped request",
				"event", "exception_expiry_skip",
				"module", "remediation/exception-service",
				"layer", "application",
				"request_id", request.RequestID,
				"error", err.Error(),
			)
			continue
		}
		request.Version = readVersion + 1

		s.revoke(ctx, request)
		s.emitTransition(ctx, request, entities.AuditEventExpired, system, oldStatus, request.Status, "")
		expired++
	}
	return expired, nil
}

func (s Service) GetRequest(ctx context.Context, callerID string, requestID string) (entities.ExceptionRequest, error) {
	caller, err := s.resolveCaller(ctx, callerID)
	if err != nil {
		return entities.ExceptionRequest{}, err
	}
	request, err := s.Repo.GetRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return entities.ExceptionRequest{}, err
	}
	if !request.IsRequester(caller.UserID) && !policy.IsPrivileged(caller.Roles) {
		return entities.ExceptionRequest{}, domainerrors.ErrForbiddenActor
	}
	return request, nil
}

func (s Service) ListMine(ctx context.Context, callerID string, status *entities.RequestStatus, page int, pageSize int) ([]entities.ExceptionRequest, int, error) {
	caller, err := s.resolveCaller(ctx, callerID)
	if err != nil {
		return nil, 0, err
	}
	page, pageSize, err = normalizePage(page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return s.Repo.ListByRequester(ctx, caller.UserID, status, page, pageSize)
}

func (s Service) ListPending(ctx context.Context, callerID string, page int, pageSize int) ([]entities.ExceptionRequest, int, error) {
	if _, err := s.resolveReviewer(ctx, callerID); err != nil {
		return nil, 0, err
	}
	page, pageSize, err := normalizePage(page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return s.Repo.ListByStatus(ctx, entities.RequestStatusPending, page, pageSize)
}

// PendingCount is the polling fallback for observers without a live channel.
func (s Service) PendingCount() int {
	if s.Notifier == nil {
		return 0
	}
	return s.Notifier.Current()
}

func (s Service) ExportAudit(ctx context.Context, callerID string, filter ports.ExportFilter) ([]entities.ExceptionRequest, error) {
	if _, err := s.resolveReviewer(ctx, callerID); err != nil {
		return nil, err
	}
	return s.Repo.ListForExport(ctx, filter)
}

func (s Service) ListAuditTrail(ctx context.Context, callerID string, requestID string) ([]entities.AuditEvent, error) {
	if _, err := s.resolveReviewer(ctx, callerID); err != nil {
		return nil, err
	}
	if s.Audit != nil {
		s.Audit.Flush()
	}
	return s.AuditLog.ListAuditEvents(ctx, strings.TrimSpace(requestID))
}

func (s Service) resolveCaller(ctx context.Context, callerID string) (ports.Identity, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return ports.Identity{}, domainerrors.ErrForbiddenActor
	}
	identity, found, err := s.Identities.GetIdentity(ctx, callerID)
	if err != nil {
		return ports.Identity{}, err
	}
	if !found {
		return ports.Identity{}, domainerrors.ErrForbiddenActor
	}
	if strings.TrimSpace(identity.DisplayName) == "" {
		identity.DisplayName = identity.UserID
	}
	return identity, nil
}

func (s Service) resolveReviewer(ctx context.Context, callerID string) (ports.Identity, error) {
	identity, err := s.resolveCaller(ctx, callerID)
	if err != nil {
		return ports.Identity{}, err
	}
	if !policy.IsPrivileged(identity.Roles) {
		return ports.Identity{}, domainerrors.ErrForbiddenActor
	}
	return identity, nil
}

// rejectedAttempt maps an illegal transition to its error and records the
// attempt at WARN. Attempts are not logged as transitions.
func (s Service) rejectedAttempt(request entities.ExceptionRequest, action string, actor ports.Identity) error {
	ResolveLogger(s.Logger).Warn("transition attempt rejected",
		"event", "exception_transition_rejected",
		"module", "remediation/exception-service",
		"layer", "application",
		"request_id", request.RequestID,
		"action", action,
		"actor_id", actor.UserID,
		"status", string(request.Status),
	)
	return domainerrors.ErrInvalidStatusTransition
}

// resolveWriteFailure turns a stale-version write into a conflict naming the
// actor and decision that won. First committer wins; the loser is told what
// happened instead of being retried against the new state.
func (s Service) resolveWriteFailure(ctx context.Context, requestID string, err error) error {
	if !errors.Is(err, domainerrors.ErrVersionConflict) {
		return err
	}
	current, readErr := s.Repo.GetRequest(ctx, requestID)
	if readErr != nil {
		return domainerrors.ErrDecisionConflict
	}
	conflict := &domainerrors.DecisionConflictError{
		RequestID:     current.RequestID,
		WinnerID:      current.ReviewerID,
		WinnerName:    current.ReviewerName,
		WinnerOutcome: string(current.Status),
		DecidedAt:     current.UpdatedAt,
	}
	if current.Status == entities.RequestStatusCancelled {
		conflict.WinnerID = current.RequesterID
		conflict.WinnerName = current.RequesterName
	}
	return conflict
}

func (s Service) materialize(ctx context.Context, request entities.ExceptionRequest) {
	if _, err := s.Materializer.Materialize(ctx, request); err != nil {
		ResolveLogger(s.Logger).Error("waiver materialization failed",
			"event", "exception_waiver_materialize_failed",
			"module", "remediation/exception-service",
			"layer", "application",
			"request_id", request.RequestID,
			"error", err.Error(),
		)
	}
}

func (s Service) revoke(ctx context.Context, request entities.ExceptionRequest) {
	if err := s.Materializer.Revoke(ctx, request); err != nil {
		ResolveLogger(s.Logger).Error("waiver revocation failed",
			"event", "exception_waiver_revoke_failed",
			"module", "remediation/exception-service",
			"layer", "application",
			"request_id", request.RequestID,
			"error", err.Error(),
		)
	}
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func normalizePage(page int, pageSize int) (int, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = 20
	}
	if !policy.ValidPageSize(pageSize) {
		return 0, 0, domainerrors.ErrInvalidPageSize
	}
	return page, pageSize, nil
}

func snippet(text string) string {
	const max = 120
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
