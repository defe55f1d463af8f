// Package s3 stores generation entries as objects in an AWS S3 bucket.
// Objects have no expiry; ttl is ignored.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	pr "github.com/unkn0wn-root/offcache/provider"
)

var ErrNilClient = errors.New("s3 provider: nil client")

type Provider struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Client *s3.Client
	Bucket string
	Prefix string // e.g. "offcache/"; joined with the key
}

func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3 provider: bucket is required")
	}
	return &Provider{client: cfg.Client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (p *Provider) key(k string) string { return path.Join(p.prefix, k) }

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(p.key(key)),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Del is idempotent: S3 reports success for missing keys.
func (p *Provider) Del(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(key)),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (p *Provider) Close(context.Context) error { return nil }
