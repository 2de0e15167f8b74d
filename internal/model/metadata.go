package model

// Project metadata is an additive JSON object on the projects table. Each
// registration handler merges exactly one of the typed sub-records below
// under its namespaced key, so concurrent merges of different keys commute.

// Metadata keys used by the provisioning handlers.
const (
	MetadataKeyAuthService     = "auth_service"
	MetadataKeyRealtimeService = "realtime_service"
	MetadataKeyStorageService  = "storage_service"
	MetadataKeyAPIKeys         = "api_keys"
)

// AuthServiceConfig records the tenant registered with the auth service.
type AuthServiceConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`
	AdminUserID  string `json:"admin_user_id,omitempty"`
	URL          string `json:"url,omitempty"`
	HealthStatus string `json:"health_status"`
	RegisteredAt string `json:"registered_at"`
}

// RealtimeServiceConfig records the realtime channel configuration.
type RealtimeServiceConfig struct {
	URL           string `json:"url"`
	ChannelPrefix string `json:"channel_prefix"`
	HealthStatus  string `json:"health_status"`
	RegisteredAt  string `json:"registered_at"`
}

// StorageServiceConfig records the object storage configuration.
type StorageServiceConfig struct {
	Provider     string `json:"provider"`
	Bucket       string `json:"bucket"`
	PathPrefix   string `json:"path_prefix"`
	QuotaBytes   int64  `json:"quota_bytes"`
	MaxObjectMB  int64  `json:"max_object_mb"`
	HealthStatus string `json:"health_status"`
	RegisteredAt string `json:"registered_at"`
}

// APIKeysSummary records key previews only. The raw keys are returned to the
// caller exactly once at generation time and are not retrievable afterward.
type APIKeysSummary struct {
	PublicPreview      string `json:"public_preview"`
	SecretPreview      string `json:"secret_preview"`
	ServiceRolePreview string `json:"service_role_preview"`
	GeneratedAt        string `json:"generated_at"`
}
