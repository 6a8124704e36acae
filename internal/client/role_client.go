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

// RoleClient resolves the caller's identity and roles from the
// identity service. The core consumes its decisions and never computes
// roles itself; nothing is cached, every permission-sensitive action
// re-resolves.
type RoleClient interface {
	ValidateToken(ctx context.Context, token string) (*TokenValidation, error)
	GetRoleContext(ctx context.Context, token string, workspaceID *uuid.UUID) (domain.RoleContext, error)
}

type roleClient struct {
	baseURL    string
	httpClient *http.Client
}

type TokenValidation struct {
	UserID string `json:"userId"`
	Valid  bool   `json:"valid"`
}

func NewRoleClient(baseURL string, timeout time.Duration) RoleClient {
	return &roleClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *roleClient) ValidateToken(ctx context.Context, token string) (*TokenValidation, error) {
	url := fmt.Sprintf("%s/api/auth/validate", c.baseURL)

	jsonBody, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

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
		return nil, fmt.Errorf("validation failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result TokenValidation
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// GetRoleContext fetches the caller's global and workspace roles in one
// call. The response is decoded into an explicit RoleContext value;
// roles are never inferred from partial data.
func (c *roleClient) GetRoleContext(ctx context.Context, token string, workspaceID *uuid.UUID) (domain.RoleContext, error) {
	url := fmt.Sprintf("%s/api/auth/roles", c.baseURL)
	if workspaceID != nil {
		url = fmt.Sprintf("%s?workspaceId=%s", url, workspaceID.String())
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return domain.RoleContext{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RoleContext{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.RoleContext{}, fmt.Errorf("role lookup failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result domain.RoleContext
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.RoleContext{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.GlobalRole == "" {
		result.GlobalRole = domain.GlobalMember
	}
	if result.WorkspaceRole == "" {
		result.WorkspaceRole = domain.WorkspaceNone
	}
	return result, nil
}
