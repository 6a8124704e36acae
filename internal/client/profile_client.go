package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"channel-service/internal/domain"

	"github.com/google/uuid"
)

// ProfileClient resolves user ids to display metadata via the user
// service. Lookups are batched: one call per typing-set recompute.
type ProfileClient interface {
	ResolveProfiles(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Profile, error)
}

type profileClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewProfileClient(baseURL string, timeout time.Duration) ProfileClient {
	return &profileClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *profileClient) ResolveProfiles(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Profile, error) {
	if len(userIDs) == 0 {
		return map[uuid.UUID]domain.Profile{}, nil
	}

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}

	jsonBody, err := json.Marshal(map[string][]string{"userIds": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/api/users/profiles", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("profile lookup failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result struct {
		Profiles []domain.Profile `json:"profiles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	profiles := make(map[uuid.UUID]domain.Profile, len(result.Profiles))
	for _, p := range result.Profiles {
		profiles[p.UserID] = p
	}
	return profiles, nil
}
