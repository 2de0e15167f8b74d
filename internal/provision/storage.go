package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/model"
)

// StorageVerifier performs a best-effort reachability check against the
// object storage backend.
type StorageVerifier interface {
	VerifyBucket(ctx context.Context, bucket string) error
}

// s3Verifier checks bucket reachability through the S3 API.
type s3Verifier struct {
	client *s3.Client
}

// NewS3Verifier builds a StorageVerifier for the configured S3-compatible
// endpoint. Returns nil when no S3 credentials are configured.
func NewS3Verifier(cfg *config.Config) StorageVerifier {
	if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return nil
	}
	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(cfg.S3Endpoint),
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		UsePathStyle: true,
	})
	return &s3Verifier{client: client}
}

func (v *s3Verifier) VerifyBucket(ctx context.Context, bucket string) error {
	_, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}
	return nil
}

// RegisterStorageService verifies that at least one storage credential set
// (S3 object storage or CDN) is configured and persists the bucket prefix
// and quota defaults into project metadata. Missing credentials are the only
// hard failure; an unreachable backend merely degrades health_status.
func (h *Handlers) RegisterStorageService(ctx context.Context, projectID string) (*model.StepResult, error) {
	project, fail, err := h.validSlugProject(ctx, projectID)
	if fail != nil || err != nil {
		return fail, err
	}

	if !h.cfg.HasStorageCredentials() {
		return failure(NewConfigurationError("no storage credentials configured", map[string]any{
			"projectId": projectID,
			"checked":   []string{"S3_ACCESS_KEY/S3_SECRET_KEY", "CDN_API_KEY"},
		})), nil
	}

	provider := "cdn"
	healthStatus := "unknown"
	if h.storage != nil {
		provider = "s3"
		if h.cfg.IntegrationTest {
			healthStatus = "healthy"
		} else if err := h.storage.VerifyBucket(ctx, h.cfg.S3Bucket); err != nil {
			h.logger.Warn().Err(err).Str("project_id", projectID).Msg("storage bucket probe failed")
		} else {
			healthStatus = "healthy"
		}
	} else if h.cfg.IntegrationTest {
		healthStatus = "healthy"
	}

	quota := config.StorageQuotaFor(h.quotas, project.Environment)
	cfg := model.StorageServiceConfig{
		Provider:     provider,
		Bucket:       h.cfg.S3Bucket,
		PathPrefix:   fmt.Sprintf("projects/%s", project.Slug),
		QuotaBytes:   quota.QuotaBytes,
		MaxObjectMB:  quota.MaxObjectMB,
		HealthStatus: healthStatus,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.projects.MergeMetadata(ctx, projectID, model.MetadataKeyStorageService, cfg); err != nil {
		return nil, err
	}

	return success(map[string]any{
		"provider":    provider,
		"bucket":      cfg.Bucket,
		"path_prefix": cfg.PathPrefix,
		"quota_bytes": quota.QuotaBytes,
	}), nil
}
