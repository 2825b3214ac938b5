package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"waivery/contexts/remediation/exception-service/adapters/memory"
	"waivery/contexts/remediation/exception-service/domain/entities"
	domainerrors "waivery/contexts/remediation/exception-service/domain/errors"
	"waivery/contexts/remediation/exception-service/ports"
)

const testReason = "Compensating network controls are in place until the migration completes later this quarter."

func newTestService(store *memory.Store, directory *memory.Directory, inventory *memory.Inventory) Service {
	return Service{
		Repo:       store,
		AuditLog:   store,
		Identities: directory,
		Inventory:  inventory,
		Outbox:     store,
		Materializer: WaiverMaterializer{
			Inventory: inventory,
			IDGen:     store,
		},
		Clock: store,
		IDGen: store,
	}
}

func testDirectory() *memory.Directory {
	return memory.NewDirectory([]ports.Identity{
		{UserID: "dev-1", DisplayName: "Avery Dev", Roles: []string{"DEVELOPER"}},
		{UserID: "admin-1", DisplayName: "Casey Admin", Roles: []string{"ADMIN"}},
		{UserID: "admin-2", DisplayName: "Drew Admin", Roles: []string{"admin"}},
	})
}

func testInventory() *memory.Inventory {
	return memory.NewInventory([]ports.Finding{
		{FindingID: "finding-1", AssetID: "asset-1", Signature: "CVE-2024-1000", Overdue: true},
	})
}

// contendedRepo commits a competing decision right before the caller's
// conditional write, forcing the stale-version path.
type contendedRepo struct {
	*memory.Store
	winner func(ctx context.Context, requestID string, version int)
	once   sync.Once
}

func (r *contendedRepo) UpdateRequest(ctx context.Context, request entities.ExceptionRequest, expectedVersion int) error {
	r.once.Do(func() {
		r.winner(ctx, request.RequestID, expectedVersion)
	})
	return r.Store.UpdateRequest(ctx, request, expectedVersion)
}

func TestConcurrentDecisionLoserGetsConflictNamingWinner(t *testing.T) {
	store := memory.NewStore()
	directory := testDirectory()
	inventory := testInventory()

	repo := &contendedRepo{
		Store: store,
		winner: func(ctx context.Context, requestID string, version int) {
			current, err := store.GetRequest(ctx, requestID)
			if err != nil {
				t.Fatalf("winner read failed: %v", err)
			}
			now := time.Now().UTC()
			current.Status = entities.RequestStatusApproved
			current.ReviewerID = "admin-1"
			current.ReviewerName = "Casey Admin"
			current.ReviewedAt = &now
			current.UpdatedAt = now
			if err := store.UpdateRequest(ctx, current, version); err != nil {
				t.Fatalf("winner commit failed: %v", err)
			}
		},
	}

	service := newTestService(store, directory, inventory)
	service.Repo = repo

	request, err := service.CreateRequest(context.Background(), "dev-1", CreateRequestInput{
		FindingID: "finding-1",
		Scope:     entities.ScopeSingleFinding,
		Reason:    testReason,
		ExpiresAt: time.Now().Add(14 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = service.Reject(context.Background(), "admin-2", request.RequestID, "Do not waive this one, asset is still exposed.")
	if !errors.Is(err, domainerrors.ErrDecisionConflict) {
		t.Fatalf("expected decision conflict, got %v", err)
	}

	var conflict *domainerrors.DecisionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected typed conflict, got %T", err)
	}
	if conflict.WinnerID != "admin-1" || conflict.WinnerName != "Casey Admin" {
		t.Fatalf("expected winner admin-1/Casey Admin, got %s/%s", conflict.WinnerID, conflict.WinnerName)
	}
	if conflict.WinnerOutcome != "approved" {
		t.Fatalf("expected winner outcome approved, got %s", conflict.WinnerOutcome)
	}

	// Exactly one decision committed.
	current, err := store.GetRequest(context.Background(), request.RequestID)
	if err != nil {
		t.Fatalf("read after race failed: %v", err)
	}
	if current.Status != entities.RequestStatusApproved || current.Version != 2 {
		t.Fatalf("expected approved v2, got %s v%d", current.Status, current.Version)
	}
}

func TestDecisionConflictAgainstCancelNamesRequester(t *testing.T) {
	store := memory.NewStore()
	directory := testDirectory()
	inventory := testInventory()

	repo := &contendedRepo{
		Store: store,
		winner: func(ctx context.Context, requestID string, version int) {
			current, err := store.GetRequest(ctx, requestID)
			if err != nil {
				t.Fatalf("winner read failed: %v", err)
			}
			current.Status = entities.RequestStatusCancelled
			current.UpdatedAt = time.Now().UTC()
			if err := store.UpdateRequest(ctx, current, version); err != nil {
				t.Fatalf("winner commit failed: %v", err)
			}
		},
	}

	service := newTestService(store, directory, inventory)
	service.Repo = repo

	request, err := service.CreateRequest(context.Background(), "dev-1", CreateRequestInput{
		FindingID: "finding-1",
		Scope:     entities.ScopeSingleFinding,
		Reason:    testReason,
		ExpiresAt: time.Now().Add(14 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = service.Approve(context.Background(), "admin-1", request.RequestID, "")
	var conflict *domainerrors.DecisionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected typed conflict, got %v", err)
	}
	if conflict.WinnerID != "dev-1" || conflict.WinnerOutcome != "cancelled" {
		t.Fatalf("expected cancel winner dev-1, got %s outcome %s", conflict.WinnerID, conflict.WinnerOutcome)
	}
}

func TestPrivilegeCheckIsCaseInsensitive(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store, testDirectory(), testInventory())

	request, err := service.CreateRequest(context.Background(), "admin-2", CreateRequestInput{
		FindingID: "finding-1",
		Scope:     entities.ScopeSingleFinding,
		Reason:    testReason,
		ExpiresAt: time.Now().Add(14 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !request.AutoApproved {
		t.Fatalf("lowercase admin role must still auto-approve")
	}
}

func TestCreateRequestRejectsPastExpiry(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store, testDirectory(), testInventory())

	_, err := service.CreateRequest(context.Background(), "dev-1", CreateRequestInput{
		FindingID: "finding-1",
		Scope:     entities.ScopeSingleFinding,
		Reason:    testReason,
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	if !errors.Is(err, domainerrors.ErrExpiryNotInFuture) {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestExpireDueRequestsRevokesWaivers(t *testing.T) {
	store := memory.NewStore()
	directory := testDirectory()
	inventory := testInventory()
	inventory.PutFinding(ports.Finding{FindingID: "finding-2", AssetID: "asset-2", Signature: "CVE-2024-2000", Overdue: true})

	service := newTestService(store, directory, inventory)

	due, err := service.CreateRequest(context.Background(), "admin-1", CreateRequestInput{
		FindingID: "finding-1",
		Scope:     entities.ScopeSingleFinding,
		Reason:    testReason,
		ExpiresAt: time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("create due failed: %v", err)
	}
	if _, err := service.CreateRequest(context.Background(), "admin-1", CreateRequestInput{
		FindingID: "finding-2",
		Scope:     entities.ScopeSingleFinding,
		Reason:    testReason,
		ExpiresAt: time.Now().Add(90 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("create future failed: %v", err)
	}
	if inventory.WaiverCount() != 2 {
		t.Fatalf("expected two waivers, got %d", inventory.WaiverCount())
	}

	// Move the first request past its expiry.
	stale, err := store.GetRequest(context.Background(), due.RequestID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	if err := store.UpdateRequest(context.Background(), stale, stale.Version); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	expired, err := service.ExpireDueRequests(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}
	if inventory.WaiverCount() != 1 {
		t.Fatalf("expected expired waiver revoked, got %d", inventory.WaiverCount())
	}

	current, err := store.GetRequest(context.Background(), due.RequestID)
	if err != nil {
		t.Fatalf("read after sweep failed: %v", err)
	}
	if current.Status != entities.RequestStatusExpired {
		t.Fatalf("expected expired status, got %s", current.Status)
	}
}
