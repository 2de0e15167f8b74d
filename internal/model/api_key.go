package model

import "time"

// API key type constants. The type is encoded into the key prefix:
// nm_{environment}_{type}_{random}.
const (
	APIKeyTypePublic      = "public"
	APIKeyTypeSecret      = "secret"
	APIKeyTypeServiceRole = "service_role"
)

// ProjectAPIKey is a provisioned, environment-scoped key for a project.
// Only the salted hash and a truncated preview are stored.
type ProjectAPIKey struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	KeyType    string     `json:"key_type"`
	KeyHash    string     `json:"-"`
	KeyPreview string     `json:"key_preview"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}
