package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"waivery/contexts/remediation/exception-service/domain/entities"
	"waivery/contexts/remediation/exception-service/ports"
)

const defaultTimeout = 5 * time.Second

// FindingClient talks to the asset service that owns findings and consumes
// waiver records. Waiver suppression is the asset service's job; this client
// only delivers and revokes the records.
type FindingClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewFindingClient(baseURL string, httpClient *http.Client) *FindingClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &FindingClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type findingPayload struct {
	FindingID string `json:"finding_id"`
	AssetID   string `json:"asset_id"`
	Signature string `json:"signature"`
	Overdue   bool   `json:"overdue"`
}

func (c *FindingClient) GetFinding(ctx context.Context, findingID string) (ports.Finding, bool, error) {
	endpoint := c.baseURL + "/v1/findings/" + url.PathEscape(findingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ports.Finding{}, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.Finding{}, false, fmt.Errorf("get finding: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ports.Finding{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return ports.Finding{}, false, fmt.Errorf("get finding: unexpected status %d", resp.StatusCode)
	}

	var payload findingPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ports.Finding{}, false, fmt.Errorf("decode finding: %w", err)
	}
	return ports.Finding{
		FindingID: payload.FindingID,
		AssetID:   payload.AssetID,
		Signature: payload.Signature,
		Overdue:   payload.Overdue,
	}, true, nil
}

type waiverPayload struct {
	WaiverID  string `json:"waiver_id"`
	RequestID string `json:"request_id"`
	Key       string `json:"key"`
	AssetID   string `json:"asset_id,omitempty"`
	Signature string `json:"signature"`
	Scope     string `json:"scope"`
	ExpiresAt string `json:"expires_at"`
}

func (c *FindingClient) ApplyWaiver(ctx context.Context, waiver entities.Waiver) error {
	body, err := json.Marshal(waiverPayload{
		WaiverID:  waiver.WaiverID,
		RequestID: waiver.RequestID,
		Key:       waiver.Key(),
		AssetID:   waiver.AssetID,
		Signature: waiver.FindingSignature,
		Scope:     string(waiver.Scope),
		ExpiresAt: waiver.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/waivers", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apply waiver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("apply waiver: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *FindingClient) RevokeWaiver(ctx context.Context, key string) error {
	endpoint := c.baseURL + "/v1/waivers/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke waiver: %w", err)
	}
	defer resp.Body.Close()

	// The asset service may already have dropped the waiver.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("revoke waiver: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// IdentityClient resolves callers against the identity service. Identities
// can disappear upstream; callers denormalize display names at write time.
type IdentityClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewIdentityClient(baseURL string, httpClient *http.Client) *IdentityClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &IdentityClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type identityPayload struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

func (c *IdentityClient) GetIdentity(ctx context.Context, userID string) (ports.Identity, bool, error) {
	endpoint := c.baseURL + "/v1/identities/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ports.Identity{}, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.Identity{}, false, fmt.Errorf("get identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ports.Identity{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return ports.Identity{}, false, fmt.Errorf("get identity: unexpected status %d", resp.StatusCode)
	}

	var payload identityPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ports.Identity{}, false, fmt.Errorf("decode identity: %w", err)
	}
	return ports.Identity{
		UserID:      payload.UserID,
		DisplayName: payload.DisplayName,
		Roles:       payload.Roles,
	}, true, nil
}
