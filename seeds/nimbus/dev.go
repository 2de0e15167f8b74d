package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuslabs/nimbus/internal/crypto"
	"github.com/nimbuslabs/nimbus/internal/platform"
	"github.com/nimbuslabs/nimbus/internal/provision"
)

const (
	devTenantID   = "00000000-0000-4000-8000-000000000001"
	devTenant2ID  = "00000000-0000-4000-8000-000000000002"
	devProjectID  = "00000000-0000-4000-8000-000000000101"
	devProject2ID = "00000000-0000-4000-8000-000000000102"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	fmt.Println("Seeding nimbus database...")

	// --- Fully provisioned project ---

	fmt.Println("  Inserting project acme...")
	_, err = pool.Exec(ctx,
		`INSERT INTO projects (id, slug, name, tenant_id, environment, status) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		devProjectID, "acme", "Acme Corp", devTenantID, "dev", "active")
	if err != nil {
		fmt.Fprintf(os.Stderr, "insert project: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	for _, def := range provision.OrderedSteps() {
		_, err = pool.Exec(ctx,
			`INSERT INTO provisioning_steps (id, project_id, step_name, status, started_at, completed_at, retry_count)
			 VALUES ($1, $2, $3, $4, $5, $6, 0)
			 ON CONFLICT (project_id, step_name) DO UPDATE SET status = EXCLUDED.status`,
			platform.NewID(), devProjectID, def.Name, "success", now.Add(-time.Minute), now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "insert step %s: %v\n", def.Name, err)
			os.Exit(1)
		}
	}

	fmt.Println("  Inserting dev API keys...")
	for _, keyType := range []string{"public", "secret", "service_role"} {
		rawKey, err := crypto.GenerateAPIKey("dev", keyType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate %s key: %v\n", keyType, err)
			os.Exit(1)
		}
		hash, err := crypto.HashAPIKey(rawKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash %s key: %v\n", keyType, err)
			os.Exit(1)
		}
		_, err = pool.Exec(ctx,
			`INSERT INTO project_api_keys (id, project_id, key_type, key_hash, key_preview)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (project_id, key_type) DO NOTHING`,
			platform.NewID(), devProjectID, keyType, hash, crypto.KeyPreview(rawKey))
		if err != nil {
			fmt.Fprintf(os.Stderr, "insert %s key: %v\n", keyType, err)
			os.Exit(1)
		}
		fmt.Printf("    %s: %s\n", keyType, rawKey)
	}

	// --- Unprovisioned project, for exercising the step chain locally ---

	fmt.Println("  Inserting project bobs-widgets...")
	_, err = pool.Exec(ctx,
		`INSERT INTO projects (id, slug, name, tenant_id, environment, status) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		devProject2ID, "bobs-widgets", "Bob's Widgets", devTenant2ID, "dev", "created")
	if err != nil {
		fmt.Fprintf(os.Stderr, "insert project: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Done.")
}
