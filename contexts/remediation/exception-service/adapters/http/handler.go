package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"waivery/contexts/remediation/exception-service/application"
	"waivery/contexts/remediation/exception-service/domain/entities"
	domainerrors "waivery/contexts/remediation/exception-service/domain/errors"
	"waivery/contexts/remediation/exception-service/ports"
	httptransport "waivery/contexts/remediation/exception-service/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) CreateRequestHandler(ctx context.Context, userID string, req httptransport.CreateRequestRequest) (httptransport.RequestResponse, error) {
	scope, ok := entities.ParseScope(req.Scope)
	if !ok {
		return httptransport.RequestResponse{}, domainerrors.ErrInvalidScope
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		return httptransport.RequestResponse{}, domainerrors.ErrExpiryNotInFuture
	}

	request, err := h.Service.CreateRequest(ctx, userID, application.CreateRequestInput{
		FindingID: req.FindingID,
		Scope:     scope,
		Reason:    req.Reason,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return httptransport.RequestResponse{}, err
	}
	return httptransport.RequestResponse{Status: "success", Data: toDTO(request)}, nil
}

func (h Handler) ApproveRequestHandler(ctx context.Context, userID string, requestID string, req httptransport.DecisionRequest) (httptransport.RequestResponse, error) {
	request, err := h.Service.Approve(ctx, userID, requestID, req.Comment)
	if err != nil {
		return httptransport.RequestResponse{}, err
	}
	return httptransport.RequestResponse{Status: "success", Data: toDTO(request)}, nil
}

func (h Handler) RejectRequestHandler(ctx context.Context, userID string, requestID string, req httptransport.DecisionRequest) (httptransport.RequestResponse, error) {
	request, err := h.Service.Reject(ctx, userID, requestID, req.Comment)
	if err != nil {
		return httptransport.RequestResponse{}, err
	}
	return httptransport.RequestResponse{Status: "success", Data: toDTO(request)}, nil
}

func (h Handler) CancelRequestHandler(ctx context.Context, userID string, requestID string) (httptransport.RequestResponse, error) {
	request, err := h.Service.Cancel(ctx, userID, requestID)
	if err != nil {
		return httptransport.RequestResponse{}, err
	}
	return httptransport.RequestResponse{Status: "success", Data: toDTO(request)}, nil
}

func (h Handler) GetRequestHandler(ctx context.Context, userID string, requestID string) (httptransport.RequestResponse, error) {
	request, err := h.Service.GetRequest(ctx, userID, requestID)
	if err != nil {
		return httptransport.RequestResponse{}, err
	}
	return httptransport.RequestResponse{Status: "success", Data: toDTO(request)}, nil
}

func (h Handler) ListMineHandler(ctx context.Context, userID string, statusRaw string, page int, pageSize int) (httptransport.RequestListResponse, error) {
	var status *entities.RequestStatus
	if statusRaw != "" {
		parsed, ok := entities.ParseStatus(statusRaw)
		if !ok {
			return httptransport.RequestListResponse{}, domainerrors.ErrInvalidStatusFilter
		}
		status = &parsed
	}

	items, total, err := h.Service.ListMine(ctx, userID, status, page, pageSize)
	if err != nil {
		return httptransport.RequestListResponse{}, err
	}
	return toListResponse(items, total, page, pageSize), nil
}

func (h Handler) ListPendingHandler(ctx context.Context, userID string, page int, pageSize int) (httptransport.RequestListResponse, error) {
	items, total, err := h.Service.ListPending(ctx, userID, page, pageSize)
	if err != nil {
		return httptransport.RequestListResponse{}, err
	}
	return toListResponse(items, total, page, pageSize), nil
}

func (h Handler) PendingCountHandler() httptransport.PendingCountResponse {
	return httptransport.PendingCountResponse{
		Status:       "success",
		PendingCount: h.Service.PendingCount(),
	}
}

func (h Handler) AuditTrailHandler(ctx context.Context, userID string, requestID string) (httptransport.AuditTrailResponse, error) {
	events, err := h.Service.ListAuditTrail(ctx, userID, requestID)
	if err != nil {
		return httptransport.AuditTrailResponse{}, err
	}
	resp := httptransport.AuditTrailResponse{
		Status: "success",
		Data:   make([]httptransport.AuditEventDTO, 0, len(events)),
	}
	for _, event := range events {
		resp.Data = append(resp.Data, httptransport.AuditEventDTO{
			EventID:   event.EventID,
			RequestID: event.RequestID,
			EventType: string(event.EventType),
			ActorID:   event.ActorID,
			ActorName: event.ActorName,
			OldStatus: string(event.OldStatus),
			NewStatus: string(event.NewStatus),
			Context:   event.Context,
			CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp, nil
}

// ExportAuditHandler renders the audit export as tabular rows, header first.
func (h Handler) ExportAuditHandler(ctx context.Context, userID string, filter ports.ExportFilter) ([][]string, error) {
	items, err := h.Service.ExportAudit(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, []string{
		"request_id", "finding_id", "scope", "requester", "status", "reviewer",
		"created_at", "reviewed_at", "expires_at", "reason", "review_comment",
	})
	for _, item := range items {
		reviewedAt := ""
		if item.ReviewedAt != nil {
			reviewedAt = item.ReviewedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			item.RequestID,
			item.FindingID,
			string(item.Scope),
			item.RequesterName,
			string(item.Status),
			item.ReviewerName,
			item.CreatedAt.UTC().Format(time.RFC3339),
			reviewedAt,
			item.ExpiresAt.UTC().Format(time.RFC3339),
			item.Reason,
			item.ReviewComment,
		})
	}
	return rows, nil
}

func toListResponse(items []entities.ExceptionRequest, total int, page int, pageSize int) httptransport.RequestListResponse {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	resp := httptransport.RequestListResponse{
		Status:   "success",
		Data:     make([]httptransport.RequestDTO, 0, len(items)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, item := range items {
		resp.Data = append(resp.Data, toDTO(item))
	}
	return resp
}

func toDTO(item entities.ExceptionRequest) httptransport.RequestDTO {
	dto := httptransport.RequestDTO{
		RequestID:        item.RequestID,
		FindingID:        item.FindingID,
		AssetID:          item.AssetID,
		FindingSignature: item.FindingSignature,
		Scope:            string(item.Scope),
		Reason:           item.Reason,
		Status:           string(item.Status),
		AutoApproved:     item.AutoApproved,
		RequesterID:      item.RequesterID,
		RequesterName:    item.RequesterName,
		ReviewerID:       item.ReviewerID,
		ReviewerName:     item.ReviewerName,
		ReviewComment:    item.ReviewComment,
		ExpiresAt:        item.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt:        item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        item.UpdatedAt.UTC().Format(time.RFC3339),
		Version:          item.Version,
	}
	if item.ReviewedAt != nil {
		dto.ReviewedAt = item.ReviewedAt.UTC().Format(time.RFC3339)
	}
	return dto
}
