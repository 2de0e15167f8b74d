package model

import (
	"time"
)

// Provisioning step status constants.
const (
	StepStatusPending = "pending"
	StepStatusRunning = "running"
	StepStatusSuccess = "success"
	StepStatusFailed  = "failed"
	StepStatusSkipped = "skipped"
)

// ProvisioningStep is the persisted execution record for one (project, step)
// pair. Rows are created lazily on the first transition to running and
// upserted on the (project_id, step_name) unique key, never duplicated.
// The table is owned by the provisioning engine; step handlers never write
// to it directly.
type ProvisioningStep struct {
	ID           string        `json:"id"`
	ProjectID    string        `json:"project_id"`
	StepName     string        `json:"step_name"`
	Status       string        `json:"status"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorDetails *ErrorDetails `json:"error_details,omitempty"`
	RetryCount   int           `json:"retry_count"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ErrorDetails is the structured failure payload persisted alongside a failed
// step. ErrorType carries the taxonomy tag (NotFoundError, ValidationError,
// ...), Context carries enough to reproduce the failure without logs.
type ErrorDetails struct {
	ErrorType  string         `json:"error_type"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// StepResult is the transient value returned by a step handler.
// Error and ErrorDetails are set iff Success is false. Data carries
// handler-specific output, e.g. the registered service URL or the
// generated raw API keys.
type StepResult struct {
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
	ErrorDetails *ErrorDetails  `json:"error_details,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// StepRunOutcome mirrors the persisted state after RunStep or RetryStep.
type StepRunOutcome struct {
	ProjectID           string         `json:"project_id"`
	StepName            string         `json:"step_name"`
	Status              string         `json:"status"`
	StartedAt           *time.Time     `json:"started_at,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	ErrorDetails        *ErrorDetails  `json:"error_details,omitempty"`
	RetryCount          int            `json:"retry_count"`
	MaxRetriesExceeded  bool           `json:"max_retries_exceeded,omitempty"`
	Data                map[string]any `json:"data,omitempty"`
}
