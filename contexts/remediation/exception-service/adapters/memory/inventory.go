package memory

import (
	"context"
	"strings"
	"sync"

	"waivery/contexts/remediation/exception-service/domain/entities"
	"waivery/contexts/remediation/exception-service/ports"
)

// Inventory is an in-memory stand-in for the external finding inventory.
// It answers overdue lookups and holds applied waivers keyed the same way
// the inventory would key them.
type Inventory struct {
	mu       sync.RWMutex
	findings map[string]ports.Finding
	waivers  map[string]entities.Waiver
}

func NewInventory(seed []ports.Finding) *Inventory {
	inv := &Inventory{
		findings: make(map[string]ports.Finding),
		waivers:  make(map[string]entities.Waiver),
	}
	for _, finding := range seed {
		inv.findings[strings.TrimSpace(finding.FindingID)] = finding
	}
	return inv
}

func (inv *Inventory) PutFinding(finding ports.Finding) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.findings[strings.TrimSpace(finding.FindingID)] = finding
}

func (inv *Inventory) GetFinding(_ context.Context, findingID string) (ports.Finding, bool, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	finding, ok := inv.findings[strings.TrimSpace(findingID)]
	if !ok {
		return ports.Finding{}, false, nil
	}
	return finding, true, nil
}

func (inv *Inventory) ApplyWaiver(_ context.Context, waiver entities.Waiver) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.waivers[waiver.Key()] = waiver
	return nil
}

// RevokeWaiver is idempotent; revoking an absent waiver is not an error.
func (inv *Inventory) RevokeWaiver(_ context.Context, key string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.waivers, key)
	return nil
}

func (inv *Inventory) WaiverByKey(key string) (entities.Waiver, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	waiver, ok := inv.waivers[key]
	return waiver, ok
}

func (inv *Inventory) WaiverCount() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.waivers)
}
