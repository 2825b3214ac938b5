package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"waivery/contexts/remediation/exception-service/domain/entities"
	domainerrors "waivery/contexts/remediation/exception-service/domain/errors"
	"waivery/contexts/remediation/exception-service/ports"

	"github.com/google/uuid"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type outboxRecord struct {
	Message     ports.OutboxMessage
	Status      string
	PublishedAt *time.Time
}

// Store is the in-memory request store and audit log used by tests and the
// in-memory wiring. The mutex stands in for the conditional write the
// postgres adapter performs; version semantics are identical.
type Store struct {
	mu sync.RWMutex

	requests map[string]entities.ExceptionRequest
	audit    []entities.AuditEvent
	outbox   map[string]outboxRecord
}

func NewStore() *Store {
	return &Store{
		requests: make(map[string]entities.ExceptionRequest),
		outbox:   make(map[string]outboxRecord),
	}
}

func (s *Store) CreateRequest(_ context.Context, request entities.ExceptionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(request.RequestID)
	if id == "" {
		return domainerrors.ErrRequestNotFound
	}
	for _, existing := range s.requests {
		if existing.FindingID == request.FindingID && existing.Scope == request.Scope && existing.Active() {
			return domainerrors.ErrDuplicateActiveRequest
		}
	}
	s.requests[id] = request
	return nil
}

func (s *Store) GetRequest(_ context.Context, requestID string) (entities.ExceptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[strings.TrimSpace(requestID)]
	if !ok {
		return entities.ExceptionRequest{}, domainerrors.ErrRequestNotFound
	}
	return request, nil
}

// UpdateRequest is the conditional write: status, fields and version are all
// checked and replaced together, so exactly one of two racing decisions
// commits.
func (s *Store) UpdateRequest(_ context.Context, request entities.ExceptionRequest, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(request.RequestID)
	current, ok := s.requests[id]
	if !ok {
		return domainerrors.ErrRequestNotFound
	}
	if current.Version != expectedVersion {
		return domainerrors.ErrVersionConflict
	}
	request.Version = expectedVersion + 1
	s.requests[id] = request
	return nil
}

func (s *Store) FindActiveRequest(_ context.Context, findingID string, scope entities.WaiverScope) (entities.ExceptionRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, request := range s.requests {
		if request.FindingID == strings.TrimSpace(findingID) && request.Scope == scope && request.Active() {
			return request, true, nil
		}
	}
	return entities.ExceptionRequest{}, false, nil
}

func (s *Store) ListByRequester(_ context.Context, requesterID string, status *entities.RequestStatus, page int, pageSize int) ([]entities.ExceptionRequest, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.ExceptionRequest, 0)
	for _, request := range s.requests {
		if request.RequesterID != strings.TrimSpace(requesterID) {
			continue
		}
		if status != nil && request.Status != *status {
			continue
		}
		items = append(items, request)
	}
	return paginate(items, page, pageSize)
}

func (s *Store) ListByStatus(_ context.Context, status entities.RequestStatus, page int, pageSize int) ([]entities.ExceptionRequest, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.ExceptionRequest, 0)
	for _, request := range s.requests {
		if request.Status == status {
			items = append(items, request)
		}
	}
	return paginate(items, page, pageSize)
}

func (s *Store) ListApprovedExpiringBy(_ context.Context, cutoff time.Time) ([]entities.ExceptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.ExceptionRequest, 0)
	for _, request := range s.requests {
		if request.Status == entities.RequestStatusApproved && !request.ExpiresAt.After(cutoff) {
			items = append(items, request)
		}
	}
	sortByCreatedDesc(items)
	return items, nil
}

func (s *Store) ListForExport(_ context.Context, filter ports.ExportFilter) ([]entities.ExceptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.ExceptionRequest, 0)
	for _, request := range s.requests {
		if filter.Status != nil && request.Status != *filter.Status {
			continue
		}
		if strings.TrimSpace(filter.RequesterID) != "" && request.RequesterID != strings.TrimSpace(filter.RequesterID) {
			continue
		}
		if strings.TrimSpace(filter.FindingID) != "" && request.FindingID != strings.TrimSpace(filter.FindingID) {
			continue
		}
		if !filter.CreatedFrom.IsZero() && request.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && request.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		items = append(items, request)
	}
	sortByCreatedDesc(items)
	return items, nil
}

func (s *Store) CountByStatus(_ context.Context, status entities.RequestStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, request := range s.requests {
		if request.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *Store) AppendAuditEvent(_ context.Context, event entities.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, event)
	return nil
}

func (s *Store) ListAuditEvents(_ context.Context, requestID string) ([]entities.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.AuditEvent, 0)
	for _, event := range s.audit {
		if requestID == "" || event.RequestID == requestID {
			items = append(items, event)
		}
	}
	return items, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		return domainerrors.ErrRequestNotFound
	}

	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.Message.Payload, payload) {
			return domainerrors.ErrVersionConflict
		}
		return nil
	}

	s.outbox[outboxID] = outboxRecord{
		Message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		},
		Status: outboxStatusPending,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0)
	for _, row := range s.outbox {
		if row.Status == outboxStatusPending {
			items = append(items, row.Message)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrRequestNotFound
	}
	ts := publishedAt.UTC()
	row.Status = outboxStatusPublished
	row.PublishedAt = &ts
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func paginate(items []entities.ExceptionRequest, page int, pageSize int) ([]entities.ExceptionRequest, int, error) {
	sortByCreatedDesc(items)
	total := len(items)

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	if offset >= total {
		return []entities.ExceptionRequest{}, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	return append([]entities.ExceptionRequest(nil), items[offset:end]...), total, nil
}

func sortByCreatedDesc(items []entities.ExceptionRequest) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].RequestID < items[j].RequestID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
