package application

import (
	"context"
	"log/slog"
	"strings"

	"waivery/contexts/remediation/exception-service/domain/entities"
	"waivery/contexts/remediation/exception-service/ports"
)

// WaiverMaterializer derives the concrete waiver record from an approved
// request and hands it to the finding inventory. The inventory is an
// external collaborator; failures here are logged by the caller and never
// roll back the request's own transition.
type WaiverMaterializer struct {
	Inventory ports.FindingInventory
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (m WaiverMaterializer) Materialize(ctx context.Context, request entities.ExceptionRequest) (entities.Waiver, error) {
	waiverID, err := m.IDGen.NewID(ctx)
	if err != nil {
		return entities.Waiver{}, err
	}

	waiver := entities.Waiver{
		WaiverID:         strings.TrimSpace(waiverID),
		RequestID:        request.RequestID,
		Scope:            request.Scope,
		FindingSignature: request.FindingSignature,
		Reason:           request.Reason,
		ExpiresAt:        request.ExpiresAt,
		GrantedByID:      request.ReviewerID,
		GrantedByName:    request.ReviewerName,
		CreatedAt:        request.UpdatedAt,
	}
	if request.Scope == entities.ScopeSingleFinding {
		waiver.AssetID = request.AssetID
	}

	if err := m.Inventory.ApplyWaiver(ctx, waiver); err != nil {
		return entities.Waiver{}, err
	}
	return waiver, nil
}

// Revoke locates the waiver by the same scope rule used at materialization
// and deletes it from the inventory.
func (m WaiverMaterializer) Revoke(ctx context.Context, request entities.ExceptionRequest) error {
	waiver := entities.Waiver{
		Scope:            request.Scope,
		FindingSignature: request.FindingSignature,
	}
	if request.Scope == entities.ScopeSingleFinding {
		waiver.AssetID = request.AssetID
	}
	return m.Inventory.RevokeWaiver(ctx, waiver.Key())
}
