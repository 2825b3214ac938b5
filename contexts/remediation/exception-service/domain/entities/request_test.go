package entities

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to RequestStatus }{
		{RequestStatusPending, RequestStatusApproved},
		{RequestStatusPending, RequestStatusRejected},
		{RequestStatusPending, RequestStatusCancelled},
		{RequestStatusApproved, RequestStatusExpired},
		{RequestStatusApproved, RequestStatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to RequestStatus }{
		{RequestStatusApproved, RequestStatusRejected},
		{RequestStatusRejected, RequestStatusApproved},
		{RequestStatusExpired, RequestStatusApproved},
		{RequestStatusCancelled, RequestStatusPending},
		{RequestStatusApproved, RequestStatusPending},
		{RequestStatusPending, RequestStatusExpired},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s forbidden", tc.from, tc.to)
		}
	}
}

func TestActiveCoversPendingAndApproved(t *testing.T) {
	for _, status := range []RequestStatus{RequestStatusPending, RequestStatusApproved} {
		if !(ExceptionRequest{Status: status}).Active() {
			t.Errorf("expected %s active", status)
		}
	}
	for _, status := range []RequestStatus{RequestStatusRejected, RequestStatusExpired, RequestStatusCancelled} {
		if (ExceptionRequest{Status: status}).Active() {
			t.Errorf("expected %s inactive", status)
		}
		if !IsTerminal(status) {
			t.Errorf("expected %s terminal", status)
		}
	}
}

func TestParseScope(t *testing.T) {
	if scope, ok := ParseScope(" Single_Finding "); !ok || scope != ScopeSingleFinding {
		t.Fatalf("expected single_finding, got %q ok=%v", scope, ok)
	}
	if _, ok := ParseScope("everything"); ok {
		t.Fatalf("expected unknown scope rejected")
	}
}
