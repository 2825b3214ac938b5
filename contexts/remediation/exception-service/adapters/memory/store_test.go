package memory

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"waivery/contexts/remediation/exception-service/domain/entities"
	domainerrors "waivery/contexts/remediation/exception-service/domain/errors"
	"waivery/contexts/remediation/exception-service/ports"
)

func seedRequest(id string, requesterID string, status entities.RequestStatus, createdAt time.Time) entities.ExceptionRequest {
	return entities.ExceptionRequest{
		RequestID:        id,
		FindingID:        "finding-" + id,
		AssetID:          "asset-" + id,
		FindingSignature: "CVE-2024-" + id,
		Scope:            entities.ScopeSingleFinding,
		Reason:           "seeded",
		Status:           status,
		RequesterID:      requesterID,
		RequesterName:    requesterID,
		ExpiresAt:        createdAt.Add(30 * 24 * time.Hour),
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
		Version:          1,
	}
}

func TestUpdateRequestConditionalOnVersion(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	request := seedRequest("r1", "dev-1", entities.RequestStatusPending, now)
	if err := store.CreateRequest(context.Background(), request); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	request.Status = entities.RequestStatusApproved
	if err := store.UpdateRequest(context.Background(), request, 1); err != nil {
		t.Fatalf("first conditional write failed: %v", err)
	}

	// A second writer holding the stale version loses.
	request.Status = entities.RequestStatusRejected
	err := store.UpdateRequest(context.Background(), request, 1)
	if !errors.Is(err, domainerrors.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	current, err := store.GetRequest(context.Background(), "r1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if current.Status != entities.RequestStatusApproved || current.Version != 2 {
		t.Fatalf("expected approved v2, got %s v%d", current.Status, current.Version)
	}
}

func TestCreateRequestRejectsSecondActiveForSameFindingScope(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	first := seedRequest("r1", "dev-1", entities.RequestStatusPending, now)
	if err := store.CreateRequest(context.Background(), first); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	second := seedRequest("r2", "dev-2", entities.RequestStatusPending, now)
	second.FindingID = first.FindingID
	err := store.CreateRequest(context.Background(), second)
	if !errors.Is(err, domainerrors.ErrDuplicateActiveRequest) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	// After the first leaves the active set a new one is allowed.
	first.Status = entities.RequestStatusRejected
	if err := store.UpdateRequest(context.Background(), first, 1); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if err := store.CreateRequest(context.Background(), second); err != nil {
		t.Fatalf("create after terminal state failed: %v", err)
	}
}

func TestListByRequesterPaginatesNewestFirst(t *testing.T) {
	store := NewStore()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 25; i++ {
		request := seedRequest("r"+strconv.Itoa(i), "dev-1", entities.RequestStatusPending, base.Add(time.Duration(i)*time.Minute))
		request.FindingID = "finding-" + strconv.Itoa(i)
		if err := store.CreateRequest(context.Background(), request); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}

	page1, total, err := store.ListByRequester(context.Background(), "dev-1", nil, 1, 20)
	if err != nil {
		t.Fatalf("page 1 failed: %v", err)
	}
	if total != 25 || len(page1) != 20 {
		t.Fatalf("expected total 25 page len 20, got %d/%d", total, len(page1))
	}
	if page1[0].RequestID != "r24" {
		t.Fatalf("expected newest first, got %s", page1[0].RequestID)
	}

	page2, _, err := store.ListByRequester(context.Background(), "dev-1", nil, 2, 20)
	if err != nil {
		t.Fatalf("page 2 failed: %v", err)
	}
	if len(page2) != 5 {
		t.Fatalf("expected 5 on last page, got %d", len(page2))
	}

	approved := entities.RequestStatusApproved
	none, total, err := store.ListByRequester(context.Background(), "dev-1", &approved, 1, 20)
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if total != 0 || len(none) != 0 {
		t.Fatalf("expected no approved requests, got %d", total)
	}
}

func TestOutboxAppendIsIdempotentPerEventID(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	envelope := testEnvelope("evt-1", now)
	if err := store.AppendOutbox(context.Background(), envelope); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := store.AppendOutbox(context.Background(), envelope); err != nil {
		t.Fatalf("replay append failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}

	if err := store.MarkOutboxPublished(context.Background(), "evt-1", now); err != nil {
		t.Fatalf("mark published failed: %v", err)
	}
	pending, err = store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list after publish failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending after publish, got %d", len(pending))
	}
}

func testEnvelope(eventID string, occurredAt time.Time) ports.EventEnvelope {
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        "exception.created",
		OccurredAt:       occurredAt,
		SourceService:    "exception-service",
		TraceID:          "r1",
		SchemaVersion:    1,
		PartitionKeyPath: "request_id",
		PartitionKey:     "r1",
		Data:             json.RawMessage(`{"request_id":"r1"}`),
	}
}
