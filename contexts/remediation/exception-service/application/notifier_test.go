package application

import (
	"testing"

	"waivery/contexts/remediation/exception-service/domain/entities"
)

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	notifier := NewPendingNotifier(nil, nil)
	notifier.Seed(3)

	ch := notifier.Subscribe(4)
	defer notifier.Unsubscribe(ch)

	select {
	case count := <-ch:
		if count != 3 {
			t.Fatalf("expected snapshot 3, got %d", count)
		}
	default:
		t.Fatalf("expected buffered snapshot before any transition")
	}
}

func TestOnTransitionAdjustsPendingMembership(t *testing.T) {
	notifier := NewPendingNotifier(nil, nil)
	ch := notifier.Subscribe(8)
	defer notifier.Unsubscribe(ch)
	<-ch // snapshot

	notifier.OnTransition("", entities.RequestStatusPending)
	notifier.OnTransition("", entities.RequestStatusPending)
	if got := <-ch; got != 1 {
		t.Fatalf("expected 1 after first create, got %d", got)
	}
	if got := <-ch; got != 2 {
		t.Fatalf("expected 2 after second create, got %d", got)
	}

	notifier.OnTransition(entities.RequestStatusPending, entities.RequestStatusApproved)
	if got := <-ch; got != 1 {
		t.Fatalf("expected 1 after approval, got %d", got)
	}

	// Auto-approved creates never pass through pending.
	notifier.OnTransition("", entities.RequestStatusApproved)
	if notifier.Current() != 1 {
		t.Fatalf("expected count unchanged for auto-approval, got %d", notifier.Current())
	}

	// Expiry of an approved request does not touch the pending count.
	notifier.OnTransition(entities.RequestStatusApproved, entities.RequestStatusExpired)
	if notifier.Current() != 1 {
		t.Fatalf("expected count unchanged for expiry, got %d", notifier.Current())
	}
}

func TestSlowSubscriberIsSkippedNotWaitedOn(t *testing.T) {
	notifier := NewPendingNotifier(nil, nil)
	ch := notifier.Subscribe(1) // snapshot fills the whole buffer
	defer notifier.Unsubscribe(ch)

	// Must not block even though the subscriber never drains.
	for i := 0; i < 10; i++ {
		notifier.OnTransition("", entities.RequestStatusPending)
	}
	if notifier.Current() != 10 {
		t.Fatalf("expected authoritative count 10, got %d", notifier.Current())
	}
}
