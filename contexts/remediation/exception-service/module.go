package exceptionservice

import (
	"context"
	"log/slog"

	httpadapter "waivery/contexts/remediation/exception-service/adapters/http"
	"waivery/contexts/remediation/exception-service/adapters/memory"
	"waivery/contexts/remediation/exception-service/application"
	"waivery/contexts/remediation/exception-service/domain/entities"
	"waivery/contexts/remediation/exception-service/ports"
)

type Module struct {
	Handler  httpadapter.Handler
	Service  application.Service
	Notifier *application.PendingNotifier
	Audit    *application.AuditRecorder

	Store     *memory.Store
	Directory *memory.Directory
	Inventory *memory.Inventory
}

type Dependencies struct {
	Repository  ports.RequestRepository
	AuditLog    ports.AuditLog
	Identities  ports.IdentityDirectory
	Inventory   ports.FindingInventory
	Outbox      ports.OutboxWriter
	PendingSink ports.PendingCountSink
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	notifier := application.NewPendingNotifier(deps.PendingSink, deps.Logger)
	recorder := application.NewAuditRecorder(deps.AuditLog, deps.Logger)

	service := application.Service{
		Repo:       deps.Repository,
		AuditLog:   deps.AuditLog,
		Identities: deps.Identities,
		Inventory:  deps.Inventory,
		Outbox:     deps.Outbox,
		Materializer: application.WaiverMaterializer{
			Inventory: deps.Inventory,
			IDGen:     deps.IDGenerator,
			Logger:    deps.Logger,
		},
		Audit:    recorder,
		Notifier: notifier,
		Clock:    deps.Clock,
		IDGen:    deps.IDGenerator,
		Logger:   deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
		Service:  service,
		Notifier: notifier,
		Audit:    recorder,
	}
}

// SeedPendingCount loads the authoritative pending count from the store.
// Call once at startup before serving observers.
func (m Module) SeedPendingCount(ctx context.Context) error {
	count, err := m.Service.Repo.CountByStatus(ctx, entities.RequestStatusPending)
	if err != nil {
		return err
	}
	m.Notifier.Seed(count)
	return nil
}

// Close drains the audit queue.
func (m Module) Close() {
	if m.Audit != nil {
		m.Audit.Close()
	}
}

func NewInMemoryModule(findings []ports.Finding, identities []ports.Identity, logger *slog.Logger) Module {
	store := memory.NewStore()
	directory := memory.NewDirectory(identities)
	inventory := memory.NewInventory(findings)

	module := NewModule(Dependencies{
		Repository:  store,
		AuditLog:    store,
		Identities:  directory,
		Inventory:   inventory,
		Outbox:      store,
		Clock:       store,
		IDGenerator: store,
		Logger:      logger,
	})
	module.Store = store
	module.Directory = directory
	module.Inventory = inventory
	return module
}
