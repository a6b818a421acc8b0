package chatapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
)

// ProfileClient re-reads cached profile data from the chat service.
// The assistant can extract new health facts during an exchange, so the
// orchestrator triggers a refresh after each successful send.
type ProfileClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

var _ repositories.ProfileRefresher = (*ProfileClient)(nil)

// NewProfileClient creates a profile refresher against the chat
// service.
func NewProfileClient(cfg Config, logger *zap.Logger) (*ProfileClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &ProfileClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}, nil
}

// RefreshCurrentProfile re-fetches the profile list, which forces the
// service to serve fresh profile data on the next read.
func (p *ProfileClient) RefreshCurrentProfile(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/profiles", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("refreshing profiles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("refreshing profiles: status %d", resp.StatusCode)
	}

	p.logger.Debug("profile data refreshed")
	return nil
}
