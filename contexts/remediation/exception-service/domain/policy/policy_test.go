package policy

import (
	"strings"
	"testing"
	"time"
)

func TestStripMarkupRemovesTags(t *testing.T) {
	got := StripMarkup(`<p>Asset is <b>isolated</b> behind the jump host.</p>`)
	want := "Asset is isolated behind the jump host."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestValidReasonBounds(t *testing.T) {
	if ValidReason(strings.Repeat("a", ReasonMinLength-1)) {
		t.Fatalf("expected reason below minimum rejected")
	}
	if !ValidReason(strings.Repeat("a", ReasonMinLength)) {
		t.Fatalf("expected reason at minimum accepted")
	}
	if !ValidReason(strings.Repeat("a", ReasonMaxLength)) {
		t.Fatalf("expected reason at maximum accepted")
	}
	if ValidReason(strings.Repeat("a", ReasonMaxLength+1)) {
		t.Fatalf("expected reason above maximum rejected")
	}
}

func TestValidReasonCountsRunesNotBytes(t *testing.T) {
	// 50 multibyte runes are valid even though the byte count is higher.
	if !ValidReason(strings.Repeat("ü", ReasonMinLength)) {
		t.Fatalf("expected rune-counted reason accepted")
	}
}

func TestValidReviewCommentBounds(t *testing.T) {
	if ValidReviewComment("too short") {
		t.Fatalf("expected 9-char comment rejected")
	}
	if !ValidReviewComment("long enough comment") {
		t.Fatalf("expected valid comment accepted")
	}
	if ValidReviewComment(strings.Repeat("a", CommentMaxLength+1)) {
		t.Fatalf("expected oversized comment rejected")
	}
}

func TestLongExpiryFlagsBeyondOneYear(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	if LongExpiry(now.Add(300*24*time.Hour), now) {
		t.Fatalf("expected 300 days not flagged")
	}
	if !LongExpiry(now.Add(400*24*time.Hour), now) {
		t.Fatalf("expected 400 days flagged")
	}
}

func TestIsPrivileged(t *testing.T) {
	if !IsPrivileged([]string{"developer", "security-champion"}) {
		t.Fatalf("expected champion role privileged regardless of case")
	}
	if !IsPrivileged([]string{" ADMIN "}) {
		t.Fatalf("expected padded admin role privileged")
	}
	if IsPrivileged([]string{"developer", "auditor"}) {
		t.Fatalf("expected plain roles not privileged")
	}
	if IsPrivileged(nil) {
		t.Fatalf("expected empty roles not privileged")
	}
}

func TestValidPageSize(t *testing.T) {
	for _, size := range []int{20, 50, 100} {
		if !ValidPageSize(size) {
			t.Errorf("expected %d valid", size)
		}
	}
	for _, size := range []int{0, 10, 25, 99, 101} {
		if ValidPageSize(size) {
			t.Errorf("expected %d invalid", size)
		}
	}
}
