package provision

import (
	"sort"
	"time"
)

// Canonical provisioning step names, in execution order.
const (
	StepCreateTenantSchema      = "create_tenant_schema"
	StepCreateTenantDatabase    = "create_tenant_database"
	StepRegisterAuthService     = "register_auth_service"
	StepRegisterRealtimeService = "register_realtime_service"
	StepRegisterStorageService  = "register_storage_service"
	StepGenerateAPIKeys         = "generate_api_keys"
	StepVerifyServices          = "verify_services"
)

// StepDefinition is an immutable, compiled-in catalog entry.
type StepDefinition struct {
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	Order             int           `json:"order"`
	EstimatedDuration time.Duration `json:"estimated_duration_ms"`
	Retryable         bool          `json:"retryable"`
	MaxRetries        int           `json:"max_retries"`
}

// catalog is the fixed, linear step set. verify_services gets a higher retry
// ceiling because it depends on the eventual availability of other, possibly
// slower-starting, services.
var catalog = map[string]StepDefinition{
	StepCreateTenantSchema: {
		Name:              StepCreateTenantSchema,
		Description:       "Create the isolated per-tenant database schema",
		Order:             1,
		EstimatedDuration: 2 * time.Second,
		Retryable:         true,
		MaxRetries:        3,
	},
	StepCreateTenantDatabase: {
		Name:              StepCreateTenantDatabase,
		Description:       "Create tenant tables, indexes and row-level security policies",
		Order:             2,
		EstimatedDuration: 5 * time.Second,
		Retryable:         true,
		MaxRetries:        3,
	},
	StepRegisterAuthService: {
		Name:              StepRegisterAuthService,
		Description:       "Register the project tenant with the auth service",
		Order:             3,
		EstimatedDuration: 3 * time.Second,
		Retryable:         true,
		MaxRetries:        3,
	},
	StepRegisterRealtimeService: {
		Name:              StepRegisterRealtimeService,
		Description:       "Configure realtime channels for the project",
		Order:             4,
		EstimatedDuration: 2 * time.Second,
		Retryable:         true,
		MaxRetries:        3,
	},
	StepRegisterStorageService: {
		Name:              StepRegisterStorageService,
		Description:       "Configure object storage buckets and quotas",
		Order:             5,
		EstimatedDuration: 3 * time.Second,
		Retryable:         true,
		MaxRetries:        3,
	},
	StepGenerateAPIKeys: {
		Name:              StepGenerateAPIKeys,
		Description:       "Generate environment-scoped project API keys",
		Order:             6,
		EstimatedDuration: 1 * time.Second,
		Retryable:         true,
		MaxRetries:        3,
	},
	StepVerifyServices: {
		Name:              StepVerifyServices,
		Description:       "Verify database and external service health",
		Order:             7,
		EstimatedDuration: 10 * time.Second,
		Retryable:         true,
		MaxRetries:        5,
	},
}

// GetStep looks up a catalog entry by name.
func GetStep(name string) (StepDefinition, bool) {
	def, ok := catalog[name]
	return def, ok
}

// OrderedSteps returns all catalog entries sorted by execution order.
func OrderedSteps() []StepDefinition {
	steps := make([]StepDefinition, 0, len(catalog))
	for _, def := range catalog {
		steps = append(steps, def)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

// IsValidStepName reports whether the name exists in the catalog.
func IsValidStepName(name string) bool {
	_, ok := catalog[name]
	return ok
}

// IsRetryable reports whether a step with the given retry count may be
// retried: the entry must be retryable and the count below its ceiling.
func IsRetryable(name string, currentRetryCount int) bool {
	def, ok := catalog[name]
	if !ok {
		return false
	}
	return def.Retryable && currentRetryCount < def.MaxRetries
}
