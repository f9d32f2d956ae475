package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/security"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultLocalPath is the base directory of the local backend
	DefaultLocalPath = "/var/lib/cleandoc/objects"

	metaSuffix   = ".meta.json"
	tokenIssuer  = "cleandoc-objectstore"
	downloadPath = "/downloads/"
)

// LocalBackend stores objects as AES-256-GCM encrypted files on disk and
// issues JWT-signed download links served by the API
type LocalBackend struct {
	basePath   string
	cipher     *security.Cipher
	signingKey []byte
	publicURL  string
	now        func() time.Time
}

type localMeta struct {
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata"`
}

// DownloadClaims are carried by a local download token
type DownloadClaims struct {
	Key      string `json:"key"`
	Filename string `json:"filename,omitempty"`
	jwt.RegisteredClaims
}

// NewLocalBackend creates a local backend rooted at basePath
func NewLocalBackend(basePath string, cipher *security.Cipher, signingKey, publicURL string) (*LocalBackend, error) {
	if basePath == "" {
		basePath = DefaultLocalPath
	}
	if cipher == nil {
		return nil, fmt.Errorf("cipher is required")
	}
	if signingKey == "" {
		return nil, fmt.Errorf("signing key is required")
	}

	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create objects directory: %w", err)
	}

	return &LocalBackend{
		basePath:   basePath,
		cipher:     cipher,
		signingKey: []byte(signingKey),
		publicURL:  strings.TrimRight(publicURL, "/"),
		now:        time.Now,
	}, nil
}

// Name implements Backend
func (b *LocalBackend) Name() string {
	return "local"
}

// Ping checks that the base directory is still a writable directory
func (b *LocalBackend) Ping(ctx context.Context) error {
	fi, err := os.Stat(b.basePath)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", b.basePath)
	}
	return nil
}

func (b *LocalBackend) path(key string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + key))
	if clean == "/" || strings.HasSuffix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.basePath, filepath.FromSlash(clean)), nil
}

// Put implements Backend
func (b *LocalBackend) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	sealed, err := b.cipher.Encrypt(data, key)
	if err != nil {
		return err
	}

	meta, err := json.Marshal(localMeta{ContentType: contentType, Size: int64(len(data)), Metadata: metadata})
	if err != nil {
		return err
	}

	if err := writeFileAtomic(p+metaSuffix, meta); err != nil {
		return err
	}
	return writeFileAtomic(p, sealed)
}

func writeFileAtomic(p string, data []byte) error {
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(p), err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(p), err)
	}
	return nil
}

// Get implements Backend
func (b *LocalBackend) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	p, err := b.path(key)
	if err != nil {
		return nil, nil, err
	}

	sealed, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object: %w", err)
	}

	data, err := b.cipher.Decrypt(sealed, key)
	if err != nil {
		return nil, nil, err
	}

	info, err := b.stat(key, p)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

func (b *LocalBackend) stat(key, p string) (*ObjectInfo, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	info := &ObjectInfo{Key: key, LastModified: fi.ModTime()}
	raw, err := os.ReadFile(p + metaSuffix)
	if err != nil {
		return info, nil
	}
	var meta localMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s: %w", key, err)
	}
	info.Size = meta.Size
	info.ContentType = meta.ContentType
	info.Metadata = meta.Metadata
	return info, nil
}

// Presign implements Backend. The returned URL carries a signed token
// that the API exchanges for the decrypted object.
func (b *LocalBackend) Presign(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	p, err := b.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	now := b.now()
	claims := DownloadClaims{
		Key:      key,
		Filename: downloadName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}
	return b.publicURL + downloadPath + url.PathEscape(token), nil
}

// ParseDownloadToken validates a token issued by Presign
func (b *LocalBackend) ParseDownloadToken(token string) (*DownloadClaims, error) {
	var claims DownloadClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return b.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid download token: %w", err)
	}
	if claims.Key == "" {
		return nil, fmt.Errorf("invalid download token: no key")
	}
	return &claims, nil
}

// List implements Backend
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(b.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) || strings.HasSuffix(p, ".tmp") {
			return nil
		}

		rel, err := filepath.Rel(b.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := b.stat(key, p)
		if err != nil {
			return err
		}
		out = append(out, *info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete implements Backend. Missing objects count as deleted.
func (b *LocalBackend) Delete(ctx context.Context, keys []string) map[string]error {
	failed := make(map[string]error)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			failed[key] = err
			continue
		}
		p, err := b.path(key)
		if err != nil {
			failed[key] = err
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failed[key] = err
			continue
		}
		_ = os.Remove(p + metaSuffix)
	}
	return failed
}

// SetModTime overrides the modification time of an object
func (b *LocalBackend) SetModTime(key string, t time.Time) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	return os.Chtimes(p, t, t)
}
