package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/nimbuslabs/nimbus/internal/crypto"
	"github.com/nimbuslabs/nimbus/internal/model"
	"github.com/nimbuslabs/nimbus/internal/platform"
)

// GenerateAPIKeys creates the three environment-scoped project keys
// (public, secret, service_role). Only salted hashes and truncated previews
// are persisted; the raw keys appear exactly once, in this handler's result
// data, and are not retrievable afterward. If the project already has keys
// the insertion is skipped, making re-runs side-effect free.
func (h *Handlers) GenerateAPIKeys(ctx context.Context, projectID string) (*model.StepResult, error) {
	project, fail, err := h.loadProject(ctx, projectID)
	if fail != nil || err != nil {
		return fail, err
	}

	existing, err := h.keys.CountByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		h.logger.Info().Str("project_id", projectID).Int("existing", existing).Msg("api keys already present, skipping generation")
		return success(map[string]any{"skipped": true, "existing_keys": existing}), nil
	}

	keyTypes := []string{model.APIKeyTypePublic, model.APIKeyTypeSecret, model.APIKeyTypeServiceRole}
	rawKeys := make(map[string]string, len(keyTypes))
	previews := make(map[string]string, len(keyTypes))
	records := make([]model.ProjectAPIKey, 0, len(keyTypes))

	for _, keyType := range keyTypes {
		rawKey, err := crypto.GenerateAPIKey(project.Environment, keyType)
		if err != nil {
			return nil, fmt.Errorf("generate %s key: %w", keyType, err)
		}
		hash, err := crypto.HashAPIKey(rawKey)
		if err != nil {
			return nil, fmt.Errorf("hash %s key: %w", keyType, err)
		}
		rawKeys[keyType] = rawKey
		previews[keyType] = crypto.KeyPreview(rawKey)
		records = append(records, model.ProjectAPIKey{
			ID:         platform.NewID(),
			ProjectID:  projectID,
			KeyType:    keyType,
			KeyHash:    hash,
			KeyPreview: previews[keyType],
		})
	}

	if err := h.keys.Insert(ctx, records); err != nil {
		return nil, err
	}

	summary := model.APIKeysSummary{
		PublicPreview:      previews[model.APIKeyTypePublic],
		SecretPreview:      previews[model.APIKeyTypeSecret],
		ServiceRolePreview: previews[model.APIKeyTypeServiceRole],
		GeneratedAt:        time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.projects.MergeMetadata(ctx, projectID, model.MetadataKeyAPIKeys, summary); err != nil {
		return nil, err
	}

	h.logger.Info().Str("project_id", projectID).Msg("api keys generated")
	return success(map[string]any{
		"public":       rawKeys[model.APIKeyTypePublic],
		"secret":       rawKeys[model.APIKeyTypeSecret],
		"service_role": rawKeys[model.APIKeyTypeServiceRole],
	}), nil
}
