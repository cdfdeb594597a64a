package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// UpstreamRefreshProvider resolves tokens against an external identity
// provider over HTTP. It is consulted only on a session-cache miss; the
// provider may answer with a different token than was presented (silent
// rotation), which the session cache then re-keys under.
type UpstreamRefreshProvider struct {
	client *http.Client
	url    string
}

// NewUpstreamRefreshProvider creates a provider that POSTs refresh requests
// to url with the given timeout.
func NewUpstreamRefreshProvider(url string, timeout time.Duration) *UpstreamRefreshProvider {
	return &UpstreamRefreshProvider{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

type refreshRequest struct {
	Token string `json:"token"`
}

type refreshResponse struct {
	Token   string                     `json:"token"`
	Session sessionDomain.SessionEntry `json:"session"`
}

// Refresh validates the presented token upstream. Any upstream rejection or
// transport failure surfaces as ErrSessionNotFound: from the caller's view
// the session simply does not exist.
func (p *UpstreamRefreshProvider) Refresh(
	ctx context.Context,
	token string,
) (*sessionDomain.SessionEntry, string, error) {
	body, err := json.Marshal(refreshRequest{Token: token})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", sessionDomain.ErrSessionNotFound
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", sessionDomain.ErrSessionNotFound
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", sessionDomain.ErrSessionNotFound
	}
	if parsed.Token == "" {
		return nil, "", sessionDomain.ErrSessionNotFound
	}

	return &parsed.Session, parsed.Token, nil
}
