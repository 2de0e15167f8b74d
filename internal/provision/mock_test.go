package provision

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/core"
)

// ---------- Mock DB ----------

// mockDB implements the core.DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

// ---------- Scan helpers ----------

// projectScanFunc yields a project row in created status.
func projectScanFunc(id, slug, environment string) func(dest ...any) error {
	return projectScanFuncWithStatus(id, slug, environment, "created")
}

func projectScanFuncWithStatus(id, slug, environment, status string) func(dest ...any) error {
	now := time.Now()
	return func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = slug
		*(dest[2].(*string)) = "Project " + slug
		*(dest[3].(*string)) = "tenant-" + slug
		*(dest[4].(*string)) = environment
		*(dest[5].(*string)) = status
		*(dest[6].(*json.RawMessage)) = json.RawMessage(`{}`)
		*(dest[7].(*time.Time)) = now
		*(dest[8].(*time.Time)) = now
		return nil
	}
}

// stepScanFunc yields a provisioning step row.
func stepScanFunc(projectID, stepName, status string, retryCount int, detailsJSON []byte) func(dest ...any) error {
	now := time.Now()
	return func(dest ...any) error {
		*(dest[0].(*string)) = "test-step-row-1"
		*(dest[1].(*string)) = projectID
		*(dest[2].(*string)) = stepName
		*(dest[3].(*string)) = status
		*(dest[4].(**time.Time)) = &now
		*(dest[5].(**time.Time)) = nil
		*(dest[6].(**string)) = nil
		*(dest[7].(*[]byte)) = detailsJSON
		*(dest[8].(*int)) = retryCount
		*(dest[9].(*time.Time)) = now
		return nil
	}
}

func intScanFunc(v int) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*int)) = v
		return nil
	}
}

// ---------- Fixtures ----------

// fakeStorageVerifier records VerifyBucket calls.
type fakeStorageVerifier struct {
	err     error
	buckets []string
}

func (f *fakeStorageVerifier) VerifyBucket(ctx context.Context, bucket string) error {
	f.buckets = append(f.buckets, bucket)
	return f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:  "dev",
		DatabaseUser: "nimbus_service",
		S3Bucket:     "nimbus-tenants",
	}
}

// newTestHandlers wires Handlers over a mock DB with the given config.
func newTestHandlers(db *mockDB, cfg *config.Config, storage StorageVerifier) *Handlers {
	projects := core.NewProjectService(db)
	steps := core.NewProvisioningStepService(db)
	keys := core.NewAPIKeyService(db)
	quotas, _ := (&config.Config{}).LoadStorageQuotas()
	return NewHandlers(db, projects, steps, keys, cfg, quotas, storage, zerolog.Nop())
}

// newTestEngine wires an Engine over a mock DB with the given handler table.
func newTestEngine(db *mockDB, handlers map[string]Handler) *Engine {
	projects := core.NewProjectService(db)
	steps := core.NewProvisioningStepService(db)
	return NewEngine(projects, steps, &Registry{handlers: handlers}, zerolog.Nop())
}
