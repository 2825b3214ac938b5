package memory

import (
	"context"
	"strings"
	"sync"

	"waivery/contexts/remediation/exception-service/ports"
)

// Directory is an in-memory identity/role store. Production wiring talks to
// the external identity provider instead.
type Directory struct {
	mu         sync.RWMutex
	identities map[string]ports.Identity
}

func NewDirectory(seed []ports.Identity) *Directory {
	d := &Directory{identities: make(map[string]ports.Identity)}
	for _, identity := range seed {
		d.identities[strings.TrimSpace(identity.UserID)] = identity
	}
	return d
}

func (d *Directory) Put(identity ports.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities[strings.TrimSpace(identity.UserID)] = identity
}

// Delete simulates an identity removed upstream. Requests keep their
// denormalized display names regardless.
func (d *Directory) Delete(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.identities, strings.TrimSpace(userID))
}

func (d *Directory) GetIdentity(_ context.Context, userID string) (ports.Identity, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	identity, ok := d.identities[strings.TrimSpace(userID)]
	if !ok {
		return ports.Identity{}, false, nil
	}
	return identity, true, nil
}
