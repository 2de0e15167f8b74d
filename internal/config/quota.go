package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StorageQuota holds storage defaults applied to newly provisioned projects.
type StorageQuota struct {
	QuotaBytes  int64 `yaml:"quota_bytes"`
	MaxObjectMB int64 `yaml:"max_object_mb"`
}

// defaultStorageQuotas is used when no quota file is configured.
var defaultStorageQuotas = map[string]StorageQuota{
	"dev":     {QuotaBytes: 1 << 30, MaxObjectMB: 50},
	"staging": {QuotaBytes: 5 << 30, MaxObjectMB: 100},
	"prod":    {QuotaBytes: 50 << 30, MaxObjectMB: 500},
}

// LoadStorageQuotas reads per-environment storage quota defaults from the
// configured YAML file, falling back to built-in defaults when no file is set.
func (c *Config) LoadStorageQuotas() (map[string]StorageQuota, error) {
	if c.StorageQuotaFile == "" {
		return defaultStorageQuotas, nil
	}

	data, err := os.ReadFile(c.StorageQuotaFile)
	if err != nil {
		return nil, fmt.Errorf("read storage quota file: %w", err)
	}

	quotas := map[string]StorageQuota{}
	if err := yaml.Unmarshal(data, &quotas); err != nil {
		return nil, fmt.Errorf("parse storage quota file: %w", err)
	}

	// Fill in any environment missing from the file.
	for env, q := range defaultStorageQuotas {
		if _, ok := quotas[env]; !ok {
			quotas[env] = q
		}
	}
	return quotas, nil
}

// StorageQuotaFor returns the quota defaults for an environment, falling back
// to the dev defaults for unknown environments.
func StorageQuotaFor(quotas map[string]StorageQuota, environment string) StorageQuota {
	if q, ok := quotas[environment]; ok {
		return q
	}
	return quotas["dev"]
}
