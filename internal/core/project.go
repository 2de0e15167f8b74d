package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nimbuslabs/nimbus/internal/model"
)

type ProjectService struct {
	db DB
}

func NewProjectService(db DB) *ProjectService {
	return &ProjectService{db: db}
}

func (s *ProjectService) Create(ctx context.Context, project *model.Project) error {
	if len(project.Metadata) == 0 {
		project.Metadata = json.RawMessage(`{}`)
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO projects (id, slug, name, tenant_id, environment, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		project.ID, project.Slug, project.Name, project.TenantID, project.Environment,
		project.Status, project.Metadata, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *ProjectService) GetByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.db.QueryRow(ctx,
		`SELECT id, slug, name, tenant_id, environment, status, metadata, created_at, updated_at
		 FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Slug, &p.Name, &p.TenantID, &p.Environment, &p.Status,
		&p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &p, nil
}

func (s *ProjectService) List(ctx context.Context, limit int, cursor, status string) ([]model.Project, bool, error) {
	query := `SELECT id, slug, name, tenant_id, environment, status, metadata, created_at, updated_at FROM projects WHERE status != 'deleted'`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, status)
		argIdx++
	}
	if cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.TenantID, &p.Environment, &p.Status,
			&p.Metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, false, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate projects: %w", err)
	}

	hasMore := len(projects) > limit
	if hasMore {
		projects = projects[:limit]
	}
	return projects, hasMore, nil
}

// TransitionStatus moves a project between lifecycle states. The update is
// conditional on the current status so concurrent transitions cannot clobber
// each other; a transition the lifecycle table forbids is rejected before
// touching the store.
func (s *ProjectService) TransitionStatus(ctx context.Context, id, from, to string) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("project %s: transition %s -> %s not permitted", id, from, to)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE projects SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("transition project %s to %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s is no longer in status %s", id, from)
	}
	return nil
}

// MergeMetadata additively merges {key: value} into the project's metadata
// JSON. Merges under distinct keys commute, so registration handlers can be
// re-run or reordered safely.
func (s *ProjectService) MergeMetadata(ctx context.Context, id, key string, value any) error {
	patch, err := json.Marshal(map[string]any{key: value})
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE projects SET metadata = metadata || $1::jsonb, updated_at = now() WHERE id = $2`,
		patch, id,
	)
	if err != nil {
		return fmt.Errorf("merge metadata for project %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}
