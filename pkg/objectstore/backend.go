package objectstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an object does not exist
	ErrNotFound = errors.New("object not found")

	// ErrChecksumMismatch is returned when stored bytes no longer match
	// their recorded SHA-256
	ErrChecksumMismatch = errors.New("object checksum mismatch")
)

// Metadata keys attached to every uploaded object
const (
	MetaSHA256     = "sha256"
	MetaUploadedAt = "uploaded-at"
)

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Backend is the storage service behind the Gateway
type Backend interface {
	// Put stores data under key, encrypted at rest
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error

	// Get returns the plaintext and info of an object
	Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error)

	// Presign returns a time-limited download URL
	Presign(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error)

	// List returns every object under prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes keys and returns the failures by key
	Delete(ctx context.Context, keys []string) map[string]error

	// Name identifies the backend in logs and readiness checks
	Name() string
}
