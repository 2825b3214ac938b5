package entities

import (
	"strings"
	"time"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusExpired   RequestStatus = "expired"
	RequestStatusCancelled RequestStatus = "cancelled"
)

type WaiverScope string

const (
	ScopeSingleFinding    WaiverScope = "single_finding"
	ScopeSignaturePattern WaiverScope = "signature_pattern"
)

// ExceptionRequest is one request for one waiver against an overdue finding.
// Version is the optimistic counter; every successful write increments it and
// decision writes are conditioned on the value read.
type ExceptionRequest struct {
	RequestID        string
	FindingID        string
	AssetID          string
	FindingSignature string
	Scope            WaiverScope
	Reason           string
	Status           RequestStatus
	AutoApproved     bool

	RequesterID   string
	RequesterName string
	ReviewerID    string
	ReviewerName  string
	ReviewComment string

	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ReviewedAt *time.Time

	Version int
}

// Active means the request currently blocks a duplicate for the same
// (finding, scope) pair.
func (r ExceptionRequest) Active() bool {
	return r.Status == RequestStatusPending || r.Status == RequestStatusApproved
}

func (r ExceptionRequest) IsRequester(userID string) bool {
	return strings.TrimSpace(userID) != "" && r.RequesterID == strings.TrimSpace(userID)
}

func IsTerminal(status RequestStatus) bool {
	switch status {
	case RequestStatusRejected, RequestStatusExpired, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine allows from -> to.
// Creation states (pending, auto-approved) are not reachable here; they are
// decided once at creation and never re-entered.
func CanTransition(from, to RequestStatus) bool {
	switch from {
	case RequestStatusPending:
		return to == RequestStatusApproved || to == RequestStatusRejected || to == RequestStatusCancelled
	case RequestStatusApproved:
		return to == RequestStatusExpired || to == RequestStatusCancelled
	default:
		return false
	}
}

func ParseScope(raw string) (WaiverScope, bool) {
	switch WaiverScope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopeSingleFinding:
		return ScopeSingleFinding, true
	case ScopeSignaturePattern:
		return ScopeSignaturePattern, true
	default:
		return "", false
	}
}

func ParseStatus(raw string) (RequestStatus, bool) {
	switch RequestStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case RequestStatusPending:
		return RequestStatusPending, true
	case RequestStatusApproved:
		return RequestStatusApproved, true
	case RequestStatusRejected:
		return RequestStatusRejected, true
	case RequestStatusExpired:
		return RequestStatusExpired, true
	case RequestStatusCancelled:
		return RequestStatusCancelled, true
	default:
		return "", false
	}
}
