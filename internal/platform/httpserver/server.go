package httpserver

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	exceptionservice "waivery/contexts/remediation/exception-service"
	"waivery/contexts/remediation/exception-service/domain/entities"
	domainerrors "waivery/contexts/remediation/exception-service/domain/errors"
	"waivery/contexts/remediation/exception-service/ports"
	exceptionhttp "waivery/contexts/remediation/exception-service/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "waivery/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	exceptions exceptionservice.Module
}

func New(exceptions exceptionservice.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		exceptions: exceptions,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /api/exceptions/v1/requests", s.handleCreateRequest)
	s.mux.HandleFunc("GET /api/exceptions/v1/requests", s.handleListMine)
	s.mux.HandleFunc("GET /api/exceptions/v1/requests/pending", s.handleListPending)
	s.mux.HandleFunc("GET /api/exceptions/v1/requests/{request_id}", s.handleGetRequest)
	s.mux.HandleFunc("POST /api/exceptions/v1/requests/{request_id}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /api/exceptions/v1/requests/{request_id}/reject", s.handleReject)
	s.mux.HandleFunc("POST /api/exceptions/v1/requests/{request_id}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /api/exceptions/v1/requests/{request_id}/audit", s.handleAuditTrail)
	s.mux.HandleFunc("GET /api/exceptions/v1/pending-count", s.handlePendingCount)
	s.mux.HandleFunc("GET /api/exceptions/v1/pending-count/stream", s.handlePendingCountStream)
	s.mux.HandleFunc("GET /api/exceptions/v1/audit/export", s.handleExportAudit)
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req exceptionhttp.CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeExceptionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.exceptions.Handler.CreateRequestHandler(r.Context(), userID, req)
	if err != nil {
		writeExceptionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	page, pageSize, ok := parsePagination(w, r)
	if !ok {
		return
	}

	resp, err := s.exceptions.Handler.ListMineHandler(r.Context(), userID, r.URL.Query().Get("status"), page, pageSize)
	if err != nil {
		writeExceptionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	page, pageSize, ok := parsePagination(w, r)
	if !ok {
		return
	}

	resp, err := s.exceptions.Handler.ListPendingHandler(r.Context(), userID, page, pageSize)
	if err != nil {
		writeExceptionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	resp, err := s.exceptions.Handler.GetRequestHandler(r.Context(), userID, r.PathValue("request_id"))
	if err != nil {
		writeExceptionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, func(userID, requestID string, req exceptionhttp.DecisionRequest) (exceptionhttp.RequestResponse, error) {
		return s.exceptions.Handler.ApproveRequestHandler(r.Context(), userID, requestID, req)
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, func(userID, requestID string, req exceptionhttp.DecisionRequest) (exceptionhttp.RequestResponse, error) {
		return s.exceptions.Handler.RejectRequestHandler(r.Context(), userID, requestID, req)
	})
}

func (s *Server) handleDecision(
	w http.ResponseWriter,
	r *http.Request,
	decide func(userID, requestID string, req exceptionhttp.DecisionRequest) (exceptionhttp.RequestResponse, error),
) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var req exceptionhttp.DecisionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeExceptionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
			return
		}
	}

	resp, err := decide(userID, r.PathValue("request_id"), req)
	if err != nil {
		writeExceptionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	resp, err := s.exceptions.Handler.CancelRequestHandler(r.Context(), userID, r.PathValue("request_id"))
	if err != nil {
		writeExceptionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	resp, err := s.exceptions.Handler.AuditTrailHandler(r.Context(), userID, r.PathValue("request_id"))
	if err != nil {
		writeExceptionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exceptions.Handler.PendingCountHandler())
}

func (s *Server) handleExportAudit(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	filter, ok := parseExportFilter(w, r)
	if !ok {
		return
	}

	rows, err := s.exceptions.Handler.ExportAuditHandler(r.Context(), userID, filter)
	if err != nil {
		writeExceptionDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="exception-audit.csv"`)
	w.WriteHeader(http.StatusOK)
	writer := csv.NewWriter(w)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			s.logger.Error("audit export write failed",
				"event", "http_audit_export_write_failed",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"error", err.Error(),
			)
			return
		}
	}
	writer.Flush()
}

func parseExportFilter(w http.ResponseWriter, r *http.Request) (ports.ExportFilter, bool) {
	query := r.URL.Query()
	filter := ports.ExportFilter{
		RequesterID: query.Get("requester_id"),
		FindingID:   query.Get("finding_id"),
	}
	if raw := query.Get("status"); raw != "" {
		status, ok := entities.ParseStatus(raw)
		if !ok {
			writeExceptionError(w, http.StatusBadRequest, "invalid_status", "unknown status filter")
			return ports.ExportFilter{}, false
		}
		filter.Status = &status
	}
	if raw := query.Get("created_from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeExceptionError(w, http.StatusBadRequest, "invalid_created_from", "created_from must be RFC3339")
			return ports.ExportFilter{}, false
		}
		filter.CreatedFrom = from
	}
	if raw := query.Get("created_to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeExceptionError(w, http.StatusBadRequest, "invalid_created_to", "created_to must be RFC3339")
			return ports.ExportFilter{}, false
		}
		filter.CreatedTo = to
	}
	return filter, true
}

func parsePagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	query := r.URL.Query()
	page := 0
	pageSize := 0

	if raw := query.Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeExceptionError(w, http.StatusBadRequest, "invalid_page", "page must be an integer")
			return 0, 0, false
		}
		page = parsed
	}
	if raw := query.Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeExceptionError(w, http.StatusBadRequest, "invalid_page_size", "page_size must be an integer")
			return 0, 0, false
		}
		pageSize = parsed
	}
	return page, pageSize, true
}

func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeExceptionError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
	}
	return userID
}

func writeExceptionDomainError(w http.ResponseWriter, err error) {
	var conflict *domainerrors.DecisionConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, exceptionhttp.ErrorResponse{
			Code:    "decision_conflict",
			Message: err.Error(),
			Conflict: &exceptionhttp.ConflictDetail{
				RequestID:     conflict.RequestID,
				WinnerID:      conflict.WinnerID,
				WinnerName:    conflict.WinnerName,
				WinnerOutcome: conflict.WinnerOutcome,
				DecidedAt:     conflict.DecidedAt.UTC().Format(time.RFC3339),
			},
		})
		return
	}

	switch {
	case errors.Is(err, domainerrors.ErrRequestNotFound):
		writeExceptionError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrFindingNotFound):
		writeExceptionError(w, http.StatusNotFound, "finding_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrFindingNotOverdue):
		writeExceptionError(w, http.StatusBadRequest, "finding_not_overdue", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidScope):
		writeExceptionError(w, http.StatusBadRequest, "invalid_scope", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidReason):
		writeExceptionError(w, http.StatusBadRequest, "invalid_reason", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidReviewComment):
		writeExceptionError(w, http.StatusBadRequest, "invalid_review_comment", err.Error())
	case errors.Is(err, domainerrors.ErrExpiryNotInFuture):
		writeExceptionError(w, http.StatusBadRequest, "invalid_expiry", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidPageSize):
		writeExceptionError(w, http.StatusBadRequest, "invalid_page_size", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidStatusFilter):
		writeExceptionError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, domainerrors.ErrDuplicateActiveRequest):
		writeExceptionError(w, http.StatusConflict, "duplicate_active_request", err.Error())
	case errors.Is(err, domainerrors.ErrDecisionConflict):
		writeExceptionError(w, http.StatusConflict, "decision_conflict", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidStatusTransition):
		writeExceptionError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domainerrors.ErrForbiddenActor):
		writeExceptionError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeExceptionError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeExceptionError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, exceptionhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
