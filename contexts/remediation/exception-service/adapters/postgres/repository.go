package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"waivery/contexts/remediation/exception-service/domain/entities"
	domainerrors "waivery/contexts/remediation/exception-service/domain/errors"
	"waivery/contexts/remediation/exception-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type requestModel struct {
	RequestID        string     `gorm:"column:request_id;primaryKey"`
	FindingID        string     `gorm:"column:finding_id;uniqueIndex:uq_exception_active,where:status IN ('pending','approved')"`
	AssetID          string     `gorm:"column:asset_id"`
	FindingSignature string     `gorm:"column:finding_signature"`
	Scope            string     `gorm:"column:scope;uniqueIndex:uq_exception_active,where:status IN ('pending','approved')"`
	Reason           string     `gorm:"column:reason"`
	Status           string     `gorm:"column:status;index"`
	AutoApproved     bool       `gorm:"column:auto_approved"`
	RequesterID      string     `gorm:"column:requester_id;index"`
	RequesterName    string     `gorm:"column:requester_name"`
	ReviewerID       string     `gorm:"column:reviewer_id"`
	ReviewerName     string     `gorm:"column:reviewer_name"`
	ReviewComment    string     `gorm:"column:review_comment"`
	ExpiresAt        time.Time  `gorm:"column:expires_at;index"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
	ReviewedAt       *time.Time `gorm:"column:reviewed_at"`
	Version          int        `gorm:"column:version"`
}

func (requestModel) TableName() string {
	return "exception_requests"
}

type auditEventModel struct {
	EventID   string    `gorm:"column:event_id;primaryKey"`
	RequestID string    `gorm:"column:request_id;index"`
	EventType string    `gorm:"column:event_type"`
	ActorID   string    `gorm:"column:actor_id"`
	ActorName string    `gorm:"column:actor_name"`
	OldStatus string    `gorm:"column:old_status"`
	NewStatus string    `gorm:"column:new_status"`
	Context   string    `gorm:"column:context"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (auditEventModel) TableName() string {
	return "exception_audit_events"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "exception_outbox"
}

func (r *Repository) CreateRequest(ctx context.Context, request entities.ExceptionRequest) error {
	row := requestModelFromEntity(request)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		// The partial unique index on (finding_id, scope) over active rows
		// is the race-proof duplicate gate.
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateActiveRequest
		}
		return err
	}
	return nil
}

func (r *Repository) GetRequest(ctx context.Context, requestID string) (entities.ExceptionRequest, error) {
	var row requestModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", strings.TrimSpace(requestID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ExceptionRequest{}, domainerrors.ErrRequestNotFound
		}
		return entities.ExceptionRequest{}, err
	}
	return row.toEntity(), nil
}

// UpdateRequest performs the single conditional write: every mutated column
// and the incremented version commit together, guarded by the version read.
// Zero rows affected with the row still present means another actor won.
func (r *Repository) UpdateRequest(ctx context.Context, request entities.ExceptionRequest, expectedVersion int) error {
	result := r.db.WithContext(ctx).
		Model(&requestModel{}).
		Where("request_id = ?", strings.TrimSpace(request.RequestID)).
		Where("version = ?", expectedVersion).
		Updates(requestUpdatesFromEntity(request, expectedVersion+1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&requestModel{}).
			Where("request_id = ?", strings.TrimSpace(request.RequestID)).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domainerrors.ErrRequestNotFound
		}
		return domainerrors.ErrVersionConflict
	}
	return nil
}

func (r *Repository) FindActiveRequest(ctx context.Context, findingID string, scope entities.WaiverScope) (entities.ExceptionRequest, bool, error) {
	var row requestModel
	err := r.db.WithContext(ctx).
		Where("finding_id = ?", strings.TrimSpace(findingID)).
		Where("scope = ?", string(scope)).
		Where("status IN ?", []string{string(entities.RequestStatusPending), string(entities.RequestStatusApproved)}).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ExceptionRequest{}, false, nil
		}
		return entities.ExceptionRequest{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListByRequester(ctx context.Context, requesterID string, status *entities.RequestStatus, page int, pageSize int) ([]entities.ExceptionRequest, int, error) {
	tx := r.db.WithContext(ctx).Model(&requestModel{}).
		Where("requester_id = ?", strings.TrimSpace(requesterID))
	if status != nil {
		tx = tx.Where("status = ?", string(*status))
	}
	return r.listPage(tx, page, pageSize)
}

func (r *Repository) ListByStatus(ctx context.Context, status entities.RequestStatus, page int, pageSize int) ([]entities.ExceptionRequest, int, error) {
	tx := r.db.WithContext(ctx).Model(&requestModel{}).
		Where("status = ?", string(status))
	return r.listPage(tx, page, pageSize)
}

func (r *Repository) listPage(tx *gorm.DB, page int, pageSize int) ([]entities.ExceptionRequest, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []requestModel
	if err := tx.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toEntities(rows), int(total), nil
}

func (r *Repository) ListApprovedExpiringBy(ctx context.Context, cutoff time.Time) ([]entities.ExceptionRequest, error) {
	var rows []requestModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.RequestStatusApproved)).
		Where("expires_at <= ?", cutoff.UTC()).
		Order("expires_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *Repository) ListForExport(ctx context.Context, filter ports.ExportFilter) ([]entities.ExceptionRequest, error) {
	tx := r.db.WithContext(ctx).Model(&requestModel{})
	if filter.Status != nil {
		tx = tx.Where("status = ?", string(*filter.Status))
	}
	if strings.TrimSpace(filter.RequesterID) != "" {
		tx = tx.Where("requester_id = ?", strings.TrimSpace(filter.RequesterID))
	}
	if strings.TrimSpace(filter.FindingID) != "" {
		tx = tx.Where("finding_id = ?", strings.TrimSpace(filter.FindingID))
	}
	if !filter.CreatedFrom.IsZero() {
		tx = tx.Where("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		tx = tx.Where("created_at <= ?", filter.CreatedTo.UTC())
	}

	var rows []requestModel
	if err := tx.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *Repository) CountByStatus(ctx context.Context, status entities.RequestStatus) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&requestModel{}).
		Where("status = ?", string(status)).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *Repository) AppendAuditEvent(ctx context.Context, event entities.AuditEvent) error {
	row := auditEventModel{
		EventID:   strings.TrimSpace(event.EventID),
		RequestID: event.RequestID,
		EventType: string(event.EventType),
		ActorID:   event.ActorID,
		ActorName: event.ActorName,
		OldStatus: string(event.OldStatus),
		NewStatus: string(event.NewStatus),
		Context:   event.Context,
		CreatedAt: event.CreatedAt.UTC(),
	}
	// Append-only: conflicts on replayed ids are ignored, rows are never
	// updated.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

func (r *Repository) ListAuditEvents(ctx context.Context, requestID string) ([]entities.AuditEvent, error) {
	tx := r.db.WithContext(ctx).Model(&auditEventModel{})
	if strings.TrimSpace(requestID) != "" {
		tx = tx.Where("request_id = ?", strings.TrimSpace(requestID))
	}

	var rows []auditEventModel
	if err := tx.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]entities.AuditEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.AuditEvent{
			EventID:   row.EventID,
			RequestID: row.RequestID,
			EventType: entities.AuditEventType(row.EventType),
			ActorID:   row.ActorID,
			ActorName: row.ActorName,
			OldStatus: entities.RequestStatus(row.OldStatus),
			NewStatus: entities.RequestStatus(row.NewStatus),
			Context:   row.Context,
			CreatedAt: row.CreatedAt,
		})
	}
	return items, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "outbox_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			CreatedAt:    row.CreatedAt,
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	ts := publishedAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": &ts,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRequestNotFound
	}
	return nil
}

func requestModelFromEntity(item entities.ExceptionRequest) requestModel {
	return requestModel{
		RequestID:        strings.TrimSpace(item.RequestID),
		FindingID:        strings.TrimSpace(item.FindingID),
		AssetID:          strings.TrimSpace(item.AssetID),
		FindingSignature: strings.TrimSpace(item.FindingSignature),
		Scope:            string(item.Scope),
		Reason:           item.Reason,
		Status:           string(item.Status),
		AutoApproved:     item.AutoApproved,
		RequesterID:      strings.TrimSpace(item.RequesterID),
		RequesterName:    item.RequesterName,
		ReviewerID:       strings.TrimSpace(item.ReviewerID),
		ReviewerName:     item.ReviewerName,
		ReviewComment:    item.ReviewComment,
		ExpiresAt:        item.ExpiresAt.UTC(),
		CreatedAt:        item.CreatedAt.UTC(),
		UpdatedAt:        item.UpdatedAt.UTC(),
		ReviewedAt:       item.ReviewedAt,
		Version:          item.Version,
	}
}

func requestUpdatesFromEntity(item entities.ExceptionRequest, nextVersion int) map[string]any {
	return map[string]any{
		"status":         string(item.Status),
		"reviewer_id":    strings.TrimSpace(item.ReviewerID),
		"reviewer_name":  item.ReviewerName,
		"review_comment": item.ReviewComment,
		"reviewed_at":    item.ReviewedAt,
		"updated_at":     item.UpdatedAt.UTC(),
		"version":        nextVersion,
	}
}

func (m requestModel) toEntity() entities.ExceptionRequest {
	return entities.ExceptionRequest{
		RequestID:        m.RequestID,
		FindingID:        m.FindingID,
		AssetID:          m.AssetID,
		FindingSignature: m.FindingSignature,
		Scope:            entities.WaiverScope(m.Scope),
		Reason:           m.Reason,
		Status:           entities.RequestStatus(m.Status),
		AutoApproved:     m.AutoApproved,
		RequesterID:      m.RequesterID,
		RequesterName:    m.RequesterName,
		ReviewerID:       m.ReviewerID,
		ReviewerName:     m.ReviewerName,
		ReviewComment:    m.ReviewComment,
		ExpiresAt:        m.ExpiresAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		ReviewedAt:       m.ReviewedAt,
		Version:          m.Version,
	}
}

func toEntities(rows []requestModel) []entities.ExceptionRequest {
	items := make([]entities.ExceptionRequest, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
