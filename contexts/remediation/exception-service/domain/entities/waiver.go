package entities

import "time"

// Waiver is the suppression record handed to the finding inventory when a
// request is approved. single_finding waivers key on (asset, signature);
// signature_pattern waivers key on the signature alone.
type Waiver struct {
	WaiverID         string
	RequestID        string
	Scope            WaiverScope
	AssetID          string
	FindingSignature string
	Reason           string
	ExpiresAt        time.Time
	GrantedByID      string
	GrantedByName    string
	CreatedAt        time.Time
}

// Key is the inventory-side identity of the waiver.
func (w Waiver) Key() string {
	if w.Scope == ScopeSignaturePattern {
		return "sig:" + w.FindingSignature
	}
	return "asset:" + w.AssetID + "/sig:" + w.FindingSignature
}
