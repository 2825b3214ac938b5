package workers

import (
	"context"
	"testing"
	"time"

	"waivery/contexts/remediation/exception-service/adapters/memory"
	"waivery/contexts/remediation/exception-service/application"
	"waivery/contexts/remediation/exception-service/domain/entities"
	"waivery/contexts/remediation/exception-service/ports"
)

const sweepReason = "Patching is blocked on a vendor firmware release scheduled for the end of next month."

func newSweeperFixture(t *testing.T) (*ExpirationSweeper, *memory.Store, *memory.Inventory, application.Service) {
	t.Helper()

	store := memory.NewStore()
	directory := memory.NewDirectory([]ports.Identity{
		{UserID: "admin-1", DisplayName: "Casey Admin", Roles: []string{"ADMIN"}},
	})
	inventory := memory.NewInventory([]ports.Finding{
		{FindingID: "finding-due", AssetID: "asset-1", Signature: "CVE-2024-0100", Overdue: true},
		{FindingID: "finding-soon", AssetID: "asset-2", Signature: "CVE-2024-0200", Overdue: true},
		{FindingID: "finding-later", AssetID: "asset-3", Signature: "CVE-2024-0300", Overdue: true},
	})

	service := application.Service{
		Repo:       store,
		AuditLog:   store,
		Identities: directory,
		Inventory:  inventory,
		Outbox:     store,
		Materializer: application.WaiverMaterializer{
			Inventory: inventory,
			IDGen:     store,
		},
		Clock: store,
		IDGen: store,
	}

	sweeper := &ExpirationSweeper{
		Service: service,
		Repo:    store,
		Outbox:  store,
		Clock:   store,
		IDGen:   store,
	}
	return sweeper, store, inventory, service
}

func approveFinding(t *testing.T, service application.Service, findingID string, expiresIn time.Duration) entities.ExceptionRequest {
	t.Helper()
	request, err := service.CreateRequest(context.Background(), "admin-1", application.CreateRequestInput{
		FindingID: findingID,
		Scope:     entities.ScopeSingleFinding,
		Reason:    sweepReason,
		ExpiresAt: time.Now().Add(expiresIn),
	})
	if err != nil {
		t.Fatalf("create for %s failed: %v", findingID, err)
	}
	return request
}

func backdateExpiry(t *testing.T, store *memory.Store, requestID string, expiresAt time.Time) {
	t.Helper()
	request, err := store.GetRequest(context.Background(), requestID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	request.ExpiresAt = expiresAt
	if err := store.UpdateRequest(context.Background(), request, request.Version); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}
}

func countOutboxByType(t *testing.T, store *memory.Store, eventType string) int {
	t.Helper()
	messages, err := store.ListPendingOutbox(context.Background(), 1000)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	count := 0
	for _, message := range messages {
		if message.EventType == eventType {
			count++
		}
	}
	return count
}

func TestSweeperExpiresPastDueAndLeavesFuture(t *testing.T) {
	sweeper, store, inventory, service := newSweeperFixture(t)

	due := approveFinding(t, service, "finding-due", time.Minute)
	future := approveFinding(t, service, "finding-later", 90*24*time.Hour)
	backdateExpiry(t, store, due.RequestID, time.Now().Add(-time.Hour))

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	expired, err := store.GetRequest(context.Background(), due.RequestID)
	if err != nil {
		t.Fatalf("read expired failed: %v", err)
	}
	if expired.Status != entities.RequestStatusExpired {
		t.Fatalf("expected expired, got %s", expired.Status)
	}

	kept, err := store.GetRequest(context.Background(), future.RequestID)
	if err != nil {
		t.Fatalf("read future failed: %v", err)
	}
	if kept.Status != entities.RequestStatusApproved {
		t.Fatalf("future request must stay approved, got %s", kept.Status)
	}

	if _, ok := inventory.WaiverByKey("asset:asset-1/sig:CVE-2024-0100"); ok {
		t.Fatalf("expected expired waiver revoked")
	}
	if _, ok := inventory.WaiverByKey("asset:asset-3/sig:CVE-2024-0300"); !ok {
		t.Fatalf("expected future waiver kept")
	}
}

func TestSweeperEmitsOneReminderPerRequest(t *testing.T) {
	sweeper, store, _, service := newSweeperFixture(t)

	approveFinding(t, service, "finding-soon", 3*24*time.Hour)
	approveFinding(t, service, "finding-later", 90*24*time.Hour)

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if got := countOutboxByType(t, store, application.EventExceptionExpiring); got != 1 {
		t.Fatalf("expected 1 reminder after first sweep, got %d", got)
	}

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if got := countOutboxByType(t, store, application.EventExceptionExpiring); got != 1 {
		t.Fatalf("reminder must be one-time, got %d", got)
	}
}

func TestSweeperReminderPassCanBeDisabled(t *testing.T) {
	sweeper, store, _, service := newSweeperFixture(t)
	sweeper.DisableReminders = true

	approveFinding(t, service, "finding-soon", 3*24*time.Hour)

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if got := countOutboxByType(t, store, application.EventExceptionExpiring); got != 0 {
		t.Fatalf("expected no reminders when disabled, got %d", got)
	}
}
