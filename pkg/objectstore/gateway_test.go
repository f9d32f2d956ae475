package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/content"
	"github.com/cleanidoc/cleandoc/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (*LocalBackend, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := security.NewCipherFromPassphrase("test-key")
	require.NoError(t, err)
	b, err := NewLocalBackend(dir, c, "signing-secret", "http://localhost:8080/")
	require.NoError(t, err)
	return b, dir
}

// TestUploadDownload tests upload metadata and the encrypted round trip
func TestUploadDownload(t *testing.T) {
	backend, dir := newLocal(t)
	fixed := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	g := NewGateway(backend, "", 0).WithClock(func() time.Time { return fixed })

	data := []byte("tenant_id;log_id\ntenant-a;log-1\n")
	key := g.Key("tenant-a", "2026-03-01", "cleandoc_logs_2026-03-01_v1.csv")
	assert.Equal(t, "exports/tenant-a/2026-03-01/cleandoc_logs_2026-03-01_v1.csv", key)

	res, err := g.Upload(context.Background(), key, data, content.CSVContentType, map[string]string{"Export-ID": "exp-1"})
	require.NoError(t, err)
	assert.Equal(t, content.Checksum(data), res.SHA256)
	assert.Equal(t, int64(len(data)), res.Size)
	assert.Equal(t, fixed, res.UploadedAt)

	raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tenant-a;log-1", "stored encrypted")

	got, info, err := g.Download(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, res.SHA256, info.Metadata[MetaSHA256])
	assert.Equal(t, "2026-03-02T02:00:00Z", info.Metadata[MetaUploadedAt])
	assert.Equal(t, "exp-1", info.Metadata["export-id"])
	assert.Equal(t, content.CSVContentType, info.ContentType)

	require.NoError(t, g.Verify(context.Background(), key))
}

func TestDownloadMissing(t *testing.T) {
	backend, _ := newLocal(t)
	g := NewGateway(backend, "", 0)

	_, _, err := g.Download(context.Background(), "exports/none/x.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = g.Presign(context.Background(), "exports/none/x.csv", 0, "x.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidKeys(t *testing.T) {
	backend, _ := newLocal(t)
	for _, key := range []string{"", "/", "../etc/passwd", "exports/../../x", "dir/"} {
		err := backend.Put(context.Background(), key, []byte("x"), "text/plain", nil)
		assert.Error(t, err, key)
	}
}

// TestPresign tests link expiry and token validation
func TestPresign(t *testing.T) {
	backend, _ := newLocal(t)
	now := time.Now()
	g := NewGateway(backend, "", 0).WithClock(func() time.Time { return now })

	key := g.Key("tenant-a", "2026-03-01", "report.pdf")
	_, err := g.Upload(context.Background(), key, []byte("%PDF"), content.PDFContentType, nil)
	require.NoError(t, err)

	link, err := g.Presign(context.Background(), key, 0, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), link.ExpiresAt)
	assert.True(t, strings.HasPrefix(link.URL, "http://localhost:8080/downloads/"))

	token, err := url.PathUnescape(strings.TrimPrefix(link.URL, "http://localhost:8080/downloads/"))
	require.NoError(t, err)
	claims, err := backend.ParseDownloadToken(token)
	require.NoError(t, err)
	assert.Equal(t, key, claims.Key)
	assert.Equal(t, "report.pdf", claims.Filename)

	t.Run("expired", func(t *testing.T) {
		short, err := g.Presign(context.Background(), key, time.Second, "")
		require.NoError(t, err)
		tok, _ := url.PathUnescape(strings.TrimPrefix(short.URL, "http://localhost:8080/downloads/"))

		backend.now = func() time.Time { return time.Now().Add(time.Hour) }
		defer func() { backend.now = time.Now }()
		_, err = backend.ParseDownloadToken(tok)
		assert.Error(t, err)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other, _ := newLocal(t)
		other.signingKey = []byte("different")
		_, err := other.ParseDownloadToken(token)
		assert.Error(t, err)
	})
}

func TestVerifyDetectsTampering(t *testing.T) {
	backend, _ := newLocal(t)
	g := NewGateway(backend, "", 0)
	key := g.Key("tenant-a", "2026-03-01", "a.csv")

	_, err := g.Upload(context.Background(), key, []byte("original"), "text/csv", nil)
	require.NoError(t, err)

	// rewrite the object while keeping the old metadata
	_, info, err := backend.Get(context.Background(), key)
	require.NoError(t, err)
	require.NoError(t, backend.Put(context.Background(), key, []byte("changed"), "text/csv", info.Metadata))

	err = g.Verify(context.Background(), key)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

// TestCleanupExpired tests retention: 800 day old objects go, 700 day old stay
func TestCleanupExpired(t *testing.T) {
	backend, _ := newLocal(t)
	now := time.Now()
	g := NewGateway(backend, "", 0).WithClock(func() time.Time { return now })
	ctx := context.Background()

	old := g.Key("tenant-a", "2024-01-01", "cleandoc_export_2024-01-01.zip")
	recent := g.Key("tenant-a", "2024-04-01", "cleandoc_export_2024-04-01.zip")
	otherTenant := g.Key("tenant-b", "2024-01-01", "cleandoc_export_2024-01-01.zip")

	for _, key := range []string{old, recent, otherTenant} {
		_, err := g.Upload(ctx, key, []byte(key), "application/zip", nil)
		require.NoError(t, err)
	}
	require.NoError(t, backend.SetModTime(old, now.Add(-800*24*time.Hour)))
	require.NoError(t, backend.SetModTime(recent, now.Add(-700*24*time.Hour)))
	require.NoError(t, backend.SetModTime(otherTenant, now.Add(-800*24*time.Hour)))

	res, err := g.CleanupExpired(ctx, "tenant-a", 730)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.DeletedCount)
	assert.Empty(t, res.Failed)

	_, _, err = g.Download(ctx, old)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = g.Download(ctx, recent)
	assert.NoError(t, err)
	_, _, err = g.Download(ctx, otherTenant)
	assert.NoError(t, err, "other tenants are untouched")
}

func TestCleanupExpiredRejectsBadInput(t *testing.T) {
	backend, _ := newLocal(t)
	g := NewGateway(backend, "", 0)

	_, err := g.CleanupExpired(context.Background(), "", 730)
	assert.Error(t, err)
	_, err = g.CleanupExpired(context.Background(), "tenant-a", 0)
	assert.Error(t, err)

	// a tenant id must not reach into another tenant's prefix
	for _, id := range []string{"tenant-a/2024-01-01", "x/../tenant-b", ".."} {
		_, err = g.CleanupExpired(context.Background(), id, 730)
		assert.Error(t, err, id)
	}
}

// flakyBackend fails deletes for selected keys and records batch sizes
type flakyBackend struct {
	objects []ObjectInfo
	fail    map[string]bool
	batches []int
}

func (f *flakyBackend) Name() string { return "flaky" }
func (f *flakyBackend) Put(context.Context, string, []byte, string, map[string]string) error {
	return nil
}
func (f *flakyBackend) Get(context.Context, string) ([]byte, *ObjectInfo, error) {
	return nil, nil, ErrNotFound
}
func (f *flakyBackend) Presign(context.Context, string, time.Duration, string) (string, error) {
	return "", nil
}
func (f *flakyBackend) List(context.Context, string) ([]ObjectInfo, error) {
	return f.objects, nil
}
func (f *flakyBackend) Delete(_ context.Context, keys []string) map[string]error {
	f.batches = append(f.batches, len(keys))
	failed := make(map[string]error)
	for _, k := range keys {
		if f.fail[k] {
			failed[k] = errors.New("access denied")
		}
	}
	return failed
}

func TestCleanupExpiredBatchesAndPartialFailure(t *testing.T) {
	now := time.Now()
	fb := &flakyBackend{fail: map[string]bool{"exports/t/k-7": true, "exports/t/k-1500": true}}
	for i := 0; i < 2500; i++ {
		fb.objects = append(fb.objects, ObjectInfo{
			Key:          fmt.Sprintf("exports/t/k-%d", i),
			LastModified: now.Add(-1000 * 24 * time.Hour),
		})
	}

	g := NewGateway(fb, "", 0).WithClock(func() time.Time { return now })
	res, err := g.CleanupExpired(context.Background(), "t", 730)
	require.NoError(t, err)

	assert.Equal(t, []int{1000, 1000, 500}, fb.batches)
	assert.Equal(t, 2498, res.DeletedCount)
	assert.Len(t, res.Failed, 2)
	assert.Equal(t, "access denied", res.Failed["exports/t/k-7"])
}

func TestPing(t *testing.T) {
	backend, dir := newLocal(t)
	g := NewGateway(backend, "", 0)
	require.NoError(t, g.Ping(context.Background()))

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, g.Ping(context.Background()))

	assert.NoError(t, NewGateway(&flakyBackend{}, "", 0).Ping(context.Background()), "no health check")
}
