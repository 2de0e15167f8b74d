package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	CoreDatabaseURL string
	TemporalAddress string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string
	ServiceName     string
	Environment     string

	// External service endpoints consumed by the provisioning handlers.
	AuthServiceURL     string
	RealtimeServiceURL string
	ControlPlaneURL    string

	// Object storage credentials. At least one credential set (S3 or CDN)
	// must be present for register_storage_service to succeed.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	CDNAPIKey   string

	// DatabaseUser is the service principal granted usage on tenant schemas.
	DatabaseUser string

	// StorageQuotaFile points to an optional YAML file with per-environment
	// storage quota defaults.
	StorageQuotaFile string

	// IntegrationTest short-circuits remote calls in step handlers with
	// deterministic success. Test seam only, never set in production.
	IntegrationTest bool
}

func Load() (*Config, error) {
	cfg := &Config{
		CoreDatabaseURL:    getEnv("CORE_DATABASE_URL", ""),
		TemporalAddress:    getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:     getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsAddr:        getEnv("METRICS_ADDR", ":9090"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ServiceName:        getEnv("SERVICE_NAME", "nimbus"),
		Environment:        getEnv("ENVIRONMENT", "dev"),
		AuthServiceURL:     getEnv("AUTH_SERVICE_URL", ""),
		RealtimeServiceURL: getEnv("REALTIME_SERVICE_URL", ""),
		ControlPlaneURL:    getEnv("CONTROL_PLANE_URL", ""),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:        getEnv("S3_SECRET_KEY", ""),
		S3Bucket:           getEnv("S3_BUCKET", "nimbus-tenants"),
		CDNAPIKey:          getEnv("CDN_API_KEY", ""),
		DatabaseUser:       getEnv("DATABASE_USER", "nimbus_service"),
		StorageQuotaFile:   getEnv("STORAGE_QUOTA_FILE", ""),
		IntegrationTest:    getEnv("INTEGRATION_TEST", "") == "true",
	}

	return cfg, nil
}

// Validate checks that the config required by the given component is present.
func (c *Config) Validate(component string) error {
	var missing []string

	switch component {
	case "core-api", "worker":
		if c.CoreDatabaseURL == "" {
			missing = append(missing, "CORE_DATABASE_URL")
		}
		if c.TemporalAddress == "" {
			missing = append(missing, "TEMPORAL_ADDRESS")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ResolveRealtimeURL returns the realtime service base URL, deriving it from
// the control plane URL when REALTIME_SERVICE_URL is not set.
func (c *Config) ResolveRealtimeURL() string {
	if c.RealtimeServiceURL != "" {
		return c.RealtimeServiceURL
	}
	if c.ControlPlaneURL != "" {
		return strings.TrimSuffix(c.ControlPlaneURL, "/") + "/realtime"
	}
	return ""
}

// HasStorageCredentials reports whether at least one storage credential set
// (S3 object storage or CDN) is configured.
func (c *Config) HasStorageCredentials() bool {
	if c.S3AccessKey != "" && c.S3SecretKey != "" {
		return true
	}
	return c.CDNAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
