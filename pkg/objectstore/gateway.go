package objectstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/content"
	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultLinkTTL is the lifetime of a download link
	DefaultLinkTTL = 24 * time.Hour

	// deleteBatchSize matches the S3 multi-object delete limit
	deleteBatchSize = 1000
)

// UploadResult is returned by Upload
type UploadResult struct {
	Key        string
	SHA256     string
	Size       int64
	UploadedAt time.Time
}

// Link is a presigned download URL
type Link struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CleanupResult reports a retention sweep
type CleanupResult struct {
	TenantID     string            `json:"tenant_id"`
	Scanned      int               `json:"scanned"`
	DeletedCount int               `json:"deleted_count"`
	Failed       map[string]string `json:"failed,omitempty"`
	Cutoff       time.Time         `json:"cutoff"`
}

// Gateway is the single entry point to object storage for the pipeline
type Gateway struct {
	backend   Backend
	keyPrefix string
	linkTTL   time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewGateway creates a gateway. An empty prefix defaults to "exports",
// a non-positive ttl to DefaultLinkTTL.
func NewGateway(backend Backend, keyPrefix string, linkTTL time.Duration) *Gateway {
	if keyPrefix == "" {
		keyPrefix = "exports"
	}
	if linkTTL <= 0 {
		linkTTL = DefaultLinkTTL
	}
	return &Gateway{
		backend:   backend,
		keyPrefix: strings.Trim(keyPrefix, "/"),
		linkTTL:   linkTTL,
		now:       time.Now,
		logger:    log.WithComponent("objectstore"),
	}
}

// WithClock replaces the time source
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// Backend returns the underlying backend
func (g *Gateway) Backend() Backend {
	return g.backend
}

// Ping checks that the backend is reachable. Backends without a health
// check are assumed reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	if p, ok := g.backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Key builds the storage key of an export artifact
func (g *Gateway) Key(tenantID, reportDate, fileName string) string {
	return path.Join(g.keyPrefix, tenantID, reportDate, fileName)
}

func (g *Gateway) tenantPrefix(tenantID string) string {
	return path.Join(g.keyPrefix, tenantID) + "/"
}

// Upload stores data and tags it with its SHA-256 and upload time
func (g *Gateway) Upload(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (*UploadResult, error) {
	uploadedAt := g.now().UTC()
	hash := content.Checksum(data)

	meta := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		meta[strings.ToLower(k)] = v
	}
	meta[MetaSHA256] = hash
	meta[MetaUploadedAt] = uploadedAt.Format(time.RFC3339)

	if err := g.backend.Put(ctx, key, data, contentType, meta); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	metrics.ArtifactBytesTotal.Add(float64(len(data)))
	g.logger.Debug().
		Str("key", key).
		Int("size", len(data)).
		Str("sha256", hash).
		Msg("Object uploaded")

	return &UploadResult{
		Key:        key,
		SHA256:     hash,
		Size:       int64(len(data)),
		UploadedAt: uploadedAt,
	}, nil
}

// Presign returns a download link valid for ttl (the gateway default when
// ttl <= 0). downloadName sets the file name offered to the browser.
func (g *Gateway) Presign(ctx context.Context, key string, ttl time.Duration, downloadName string) (*Link, error) {
	if ttl <= 0 {
		ttl = g.linkTTL
	}
	expires := g.now().Add(ttl)

	u, err := g.backend.Presign(ctx, key, ttl, downloadName)
	if err != nil {
		return nil, fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return &Link{URL: u, ExpiresAt: expires}, nil
}

// Download returns the plaintext of an object
func (g *Gateway) Download(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	return g.backend.Get(ctx, key)
}

// Verify re-hashes a stored object against its sha256 metadata
func (g *Gateway) Verify(ctx context.Context, key string) error {
	data, info, err := g.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	expected := info.Metadata[MetaSHA256]
	if expected == "" {
		return fmt.Errorf("%s: no checksum metadata", key)
	}
	if actual := content.Checksum(data); actual != expected {
		return fmt.Errorf("%s: %w (expected %s, got %s)", key, ErrChecksumMismatch, expected, actual)
	}
	return nil
}

// CleanupExpired deletes every object of the tenant last modified before
// now - retentionDays. Deletion is batched and best-effort: failed keys are
// reported in the result and do not abort the sweep.
func (g *Gateway) CleanupExpired(ctx context.Context, tenantID string, retentionDays int) (*CleanupResult, error) {
	if err := types.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff := g.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	res := &CleanupResult{TenantID: tenantID, Cutoff: cutoff}

	objects, err := g.backend.List(ctx, g.tenantPrefix(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	res.Scanned = len(objects)

	var expired []string
	for _, obj := range objects {
		if obj.LastModified.Before(cutoff) {
			expired = append(expired, obj.Key)
		}
	}

	for start := 0; start < len(expired); start += deleteBatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+deleteBatchSize, len(expired))
		batch := expired[start:end]

		failed := g.backend.Delete(ctx, batch)
		res.DeletedCount += len(batch) - len(failed)
		for key, ferr := range failed {
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[key] = ferr.Error()
			g.logger.Warn().Err(ferr).Str("key", key).Msg("Failed to delete expired object")
		}
	}

	metrics.RetentionDeletedTotal.Add(float64(res.DeletedCount))
	g.logger.Info().
		Str("tenant_id", tenantID).
		Int("scanned", res.Scanned).
		Int("deleted", res.DeletedCount).
		Int("failed", len(res.Failed)).
		Time("cutoff", cutoff).
		Msg("Retention cleanup finished")

	return res, nil
}
