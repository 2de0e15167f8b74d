package core

import (
	"context"
	"fmt"

	"github.com/nimbuslabs/nimbus/internal/model"
)

// APIKeyService manages provisioned project API keys. Only salted hashes and
// truncated previews are stored; raw keys exist exactly once, in the
// generate_api_keys handler result.
type APIKeyService struct {
	db DB
}

func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// CountByProject returns the number of non-revoked keys for a project.
// The generate_api_keys handler uses this to skip insertion on re-runs.
func (s *APIKeyService) CountByProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM project_api_keys WHERE project_id = $1 AND revoked_at IS NULL`,
		projectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count api keys for project %s: %w", projectID, err)
	}
	return count, nil
}

// Insert stores a batch of hashed keys.
func (s *APIKeyService) Insert(ctx context.Context, keys []model.ProjectAPIKey) error {
	for _, k := range keys {
		_, err := s.db.Exec(ctx,
			`INSERT INTO project_api_keys (id, project_id, key_type, key_hash, key_preview, created_at)
			 VALUES ($1, $2, $3, $4, $5, now())`,
			k.ID, k.ProjectID, k.KeyType, k.KeyHash, k.KeyPreview,
		)
		if err != nil {
			return fmt.Errorf("insert %s api key for project %s: %w", k.KeyType, k.ProjectID, err)
		}
	}
	return nil
}

// ListByProject returns key previews for a project. Hashes are never exposed.
func (s *APIKeyService) ListByProject(ctx context.Context, projectID string) ([]model.ProjectAPIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, project_id, key_type, key_preview, created_at, revoked_at
		 FROM project_api_keys WHERE project_id = $1 ORDER BY key_type`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var keys []model.ProjectAPIKey
	for rows.Next() {
		var k model.ProjectAPIKey
		if err := rows.Scan(&k.ID, &k.ProjectID, &k.KeyType, &k.KeyPreview, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// Revoke soft-deletes an API key by setting revoked_at.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE project_api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s not found or already revoked", id)
	}
	return nil
}
