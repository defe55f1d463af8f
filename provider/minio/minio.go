// Package minio stores generation entries as objects in a MinIO or other
// S3-compatible bucket. Objects have no expiry; ttl is ignored.
package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"

	pr "github.com/unkn0wn-root/offcache/provider"
)

var ErrNilClient = errors.New("minio provider: nil client")

type Provider struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Client *minio.Client
	Bucket string
	Prefix string // e.g. "offcache/"; joined with the key
}

func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio provider: bucket is required")
	}
	return &Provider{client: cfg.Client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (p *Provider) key(k string) string { return path.Join(p.prefix, k) }

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, p.key(key), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on first read.
	b, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	_, err := p.client.PutObject(ctx, p.bucket, p.key(key), bytes.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	err := p.client.RemoveObject(ctx, p.bucket, p.key(key), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// Close is a no-op; the minio client has no resources to release.
func (p *Provider) Close(context.Context) error { return nil }
