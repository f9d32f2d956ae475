package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
)

// S3Config configures an S3 compatible backend
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Backend stores objects in an S3 compatible bucket with SSE-S3
// server-side encryption
type S3Backend struct {
	client *minio.Client
	bucket string
}

// NewS3Backend connects to the bucket and checks that it exists
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &S3Backend{client: client, bucket: cfg.Bucket}, nil
}

// Name implements Backend
func (b *S3Backend) Name() string {
	return "s3"
}

// Ping checks that the bucket is still reachable
func (b *S3Backend) Ping(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", b.bucket)
	}
	return nil
}

// Put implements Backend
func (b *S3Backend) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:          contentType,
		UserMetadata:         metadata,
		ServerSideEncryption: encrypt.NewSSE(),
	})
	return err
}

// Get implements Backend
func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, b.mapErr(key, err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, nil, b.mapErr(key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	info := toObjectInfo(stat)
	return data, &info, nil
}

// Presign implements Backend
func (b *S3Backend) Presign(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, ttl, params)
	if err != nil {
		return "", b.mapErr(key, err)
	}
	return u.String(), nil
}

// List implements Backend
func (b *S3Backend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, toObjectInfo(obj))
	}
	return out, nil
}

// Delete implements Backend
func (b *S3Backend) Delete(ctx context.Context, keys []string) map[string]error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	failed := make(map[string]error)
	for rerr := range b.client.RemoveObjects(ctx, b.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed[rerr.ObjectName] = rerr.Err
	}
	return failed
}

func (b *S3Backend) mapErr(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}

func toObjectInfo(obj minio.ObjectInfo) ObjectInfo {
	meta := make(map[string]string, len(obj.UserMetadata))
	for k, v := range obj.UserMetadata {
		meta[strings.ToLower(strings.TrimPrefix(k, "X-Amz-Meta-"))] = v
	}
	return ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ContentType:  obj.ContentType,
		LastModified: obj.LastModified,
		Metadata:     meta,
	}
}
