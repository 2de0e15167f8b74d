package model

import (
	"encoding/json"
	"time"
)

// Project environment constants.
const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

// Project is a tenant-owned project on the platform. Provisioning creates the
// project's isolated resources and moves it from created to active.
type Project struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	TenantID    string          `json:"tenant_id"`
	Environment string          `json:"environment"`
	Status      string          `json:"status"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SchemaName returns the per-tenant Postgres schema derived from the slug.
// Callers must validate the slug before using this in interpolated SQL.
func (p *Project) SchemaName() string {
	return "tenant_" + p.Slug
}
