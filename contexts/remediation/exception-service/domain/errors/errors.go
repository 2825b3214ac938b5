package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRequestNotFound         = errors.New("exception request not found")
	ErrFindingNotFound         = errors.New("finding not found")
	ErrFindingNotOverdue       = errors.New("finding is not overdue")
	ErrInvalidScope            = errors.New("invalid waiver scope")
	ErrInvalidReason           = errors.New("reason must be 50-2048 characters after markup removal")
	ErrInvalidReviewComment    = errors.New("review comment must be 10-1024 characters")
	ErrExpiryNotInFuture       = errors.New("expiration must be strictly in the future")
	ErrDuplicateActiveRequest  = errors.New("an active exception request already exists for this finding and scope")
	ErrInvalidStatusTransition = errors.New("transition not allowed from current status")
	ErrForbiddenActor          = errors.New("actor is not allowed to perform this action")
	ErrInvalidPageSize         = errors.New("page size must be 20, 50 or 100")
	ErrInvalidStatusFilter     = errors.New("unknown status filter")
	ErrDecisionConflict        = errors.New("another actor already decided this request")
	ErrVersionConflict         = errors.New("request was modified concurrently")
)

// DecisionConflictError is returned to the loser of a decision race. The
// first conditional write wins; everyone else is told who decided and how
// instead of being retried against the updated state.
type DecisionConflictError struct {
	RequestID     string
	WinnerID      string
	WinnerName    string
	WinnerOutcome string
	DecidedAt     time.Time
}

func (e *DecisionConflictError) Error() string {
	return fmt.Sprintf("request %s already %s by %s", e.RequestID, e.WinnerOutcome, e.WinnerName)
}

func (e *DecisionConflictError) Is(target error) bool {
	return target == ErrDecisionConflict
}
