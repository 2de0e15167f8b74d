package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nimbuslabs/nimbus/internal/model"
	"github.com/nimbuslabs/nimbus/internal/platform"
)

// ServiceStatusError is a non-OK HTTP response from an external service.
// Distinct from a connection failure, which handlers treat as "service not
// yet available".
type ServiceStatusError struct {
	StatusCode int
	Body       string
}

func (e *ServiceStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// AuthServiceClient talks to the auth service's tenant management API.
type AuthServiceClient struct {
	httpClient *http.Client
}

func NewAuthServiceClient() *AuthServiceClient {
	return &AuthServiceClient{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// CreateTenantParams is the auth service tenant-creation request body.
type CreateTenantParams struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
	AdminName     string `json:"adminName"`
}

// CreateTenantResult carries the identifiers returned by the auth service.
type CreateTenantResult struct {
	TenantID string
	UserID   string
}

// CreateTenant calls POST {baseURL}/api/auth/create-tenant. A connection
// failure is returned as-is; a non-2xx response is a *ServiceStatusError.
func (c *AuthServiceClient) CreateTenant(ctx context.Context, baseURL string, params CreateTenantParams) (*CreateTenantResult, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal create tenant: %w", err)
	}

	url := fmt.Sprintf("%s/api/auth/create-tenant", baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tenant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &ServiceStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var decoded struct {
		Tenant struct {
			ID string `json:"id"`
		} `json:"tenant"`
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode create tenant response: %w", err)
	}

	return &CreateTenantResult{TenantID: decoded.Tenant.ID, UserID: decoded.User.ID}, nil
}

// RegisterAuthService registers the project as a tenant with the auth
// service under a placeholder admin identity and records the returned
// identifiers in project metadata. If the service cannot be reached at all
// it is treated as "not yet available" and the step still succeeds so the
// chain is not blocked; only an explicit non-OK response is a hard failure.
func (h *Handlers) RegisterAuthService(ctx context.Context, projectID string) (*model.StepResult, error) {
	project, fail, err := h.loadProject(ctx, projectID)
	if fail != nil || err != nil {
		return fail, err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	if h.cfg.IntegrationTest {
		cfg := model.AuthServiceConfig{
			TenantID:     "mock-tenant-" + project.Slug,
			AdminUserID:  "mock-user-" + project.Slug,
			URL:          h.cfg.AuthServiceURL,
			HealthStatus: "healthy",
			RegisteredAt: now,
		}
		if err := h.projects.MergeMetadata(ctx, projectID, model.MetadataKeyAuthService, cfg); err != nil {
			return nil, err
		}
		return success(map[string]any{"tenant_id": cfg.TenantID, "mocked": true}), nil
	}

	if h.cfg.AuthServiceURL == "" {
		cfg := model.AuthServiceConfig{HealthStatus: "not_configured", RegisteredAt: now}
		if err := h.projects.MergeMetadata(ctx, projectID, model.MetadataKeyAuthService, cfg); err != nil {
			return nil, err
		}
		return success(map[string]any{"registered": false}), nil
	}

	result, err := h.auth.CreateTenant(ctx, h.cfg.AuthServiceURL, CreateTenantParams{
		Name:          project.Name,
		Slug:          project.Slug,
		AdminEmail:    fmt.Sprintf("admin@%s.nimbus.local", project.Slug),
		AdminPassword: platform.NewSecret(24),
		AdminName:     "Project Admin",
	})
	if err != nil {
		var statusErr *ServiceStatusError
		if errors.As(err, &statusErr) {
			return failure(NewServiceError("auth service rejected tenant creation", map[string]any{
				"projectId": projectID,
				"status":    statusErr.StatusCode,
				"body":      statusErr.Body,
			})), nil
		}
		// Could not connect: the auth service may simply not be up yet.
		// Record the attempt and let the chain continue.
		h.logger.Warn().Err(err).Str("project_id", projectID).Msg("auth service unreachable, deferring registration")
		cfg := model.AuthServiceConfig{
			URL:          h.cfg.AuthServiceURL,
			HealthStatus: "unreachable",
			RegisteredAt: now,
		}
		if mergeErr := h.projects.MergeMetadata(ctx, projectID, model.MetadataKeyAuthService, cfg); mergeErr != nil {
			return nil, mergeErr
		}
		return success(map[string]any{"registered": false}), nil
	}

	cfg := model.AuthServiceConfig{
		TenantID:     result.TenantID,
		AdminUserID:  result.UserID,
		URL:          h.cfg.AuthServiceURL,
		HealthStatus: "healthy",
		RegisteredAt: now,
	}
	if err := h.projects.MergeMetadata(ctx, projectID, model.MetadataKeyAuthService, cfg); err != nil {
		return nil, err
	}

	h.logger.Info().Str("project_id", projectID).Str("auth_tenant_id", result.TenantID).Msg("registered with auth service")
	return success(map[string]any{
		"tenant_id": result.TenantID,
		"user_id":   result.UserID,
		"url":       h.cfg.AuthServiceURL,
	}), nil
}
