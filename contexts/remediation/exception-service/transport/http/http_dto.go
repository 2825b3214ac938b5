package http

type ErrorResponse struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Conflict *ConflictDetail `json:"conflict,omitempty"`
}

// ConflictDetail tells the loser of a decision race who won and how, so the
// caller can refresh without guessing.
type ConflictDetail struct {
	RequestID     string `json:"request_id"`
	WinnerID      string `json:"winner_id,omitempty"`
	WinnerName    string `json:"winner_name"`
	WinnerOutcome string `json:"winner_outcome"`
	DecidedAt     string `json:"decided_at"`
}

type CreateRequestRequest struct {
	FindingID string `json:"finding_id"`
	Scope     string `json:"scope"`
	Reason    string `json:"reason"`
	ExpiresAt string `json:"expires_at"`
}

type DecisionRequest struct {
	Comment string `json:"comment,omitempty"`
}

type RequestDTO struct {
	RequestID        string `json:"request_id"`
	FindingID        string `json:"finding_id"`
	AssetID          string `json:"asset_id,omitempty"`
	FindingSignature string `json:"finding_signature"`
	Scope            string `json:"scope"`
	Reason           string `json:"reason"`
	Status           string `json:"status"`
	AutoApproved     bool   `json:"auto_approved"`
	RequesterID      string `json:"requester_id"`
	RequesterName    string `json:"requester_name"`
	ReviewerID       string `json:"reviewer_id,omitempty"`
	ReviewerName     string `json:"reviewer_name,omitempty"`
	ReviewComment    string `json:"review_comment,omitempty"`
	ExpiresAt        string `json:"expires_at"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
	ReviewedAt       string `json:"reviewed_at,omitempty"`
	Version          int    `json:"version"`
}

type RequestResponse struct {
	Status string     `json:"status"`
	Data   RequestDTO `json:"data"`
}

type RequestListResponse struct {
	Status   string       `json:"status"`
	Data     []RequestDTO `json:"data"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

type PendingCountResponse struct {
	Status       string `json:"status"`
	PendingCount int    `json:"pending_count"`
}

type AuditEventDTO struct {
	EventID   string `json:"event_id"`
	RequestID string `json:"request_id"`
	EventType string `json:"event_type"`
	ActorID   string `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
	Context   string `json:"context,omitempty"`
	CreatedAt string `json:"created_at"`
}

type AuditTrailResponse struct {
	Status string          `json:"status"`
	Data   []AuditEventDTO `json:"data"`
}
