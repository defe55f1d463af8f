package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/offcache"
	"github.com/unkn0wn-root/offcache/codec"
	pr "github.com/unkn0wn-root/offcache/provider"
	bigcacheprov "github.com/unkn0wn-root/offcache/provider/bigcache"
	"github.com/unkn0wn-root/offcache/provider/memory"
	minioprov "github.com/unkn0wn-root/offcache/provider/minio"
	redisprov "github.com/unkn0wn-root/offcache/provider/redis"
	ristrettoprov "github.com/unkn0wn-root/offcache/provider/ristretto"
	s3prov "github.com/unkn0wn-root/offcache/provider/s3"
	sqliteprov "github.com/unkn0wn-root/offcache/provider/sqlite"
	"github.com/unkn0wn-root/offcache/registry"
)

// backends holds everything Storage is assembled from. closers release what
// Storage.Close does not.
type backends struct {
	provider pr.Provider
	registry registry.Registry
	codec    codec.Codec[offcache.Entry]

	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg Config) (*backends, error) {
	b := &backends{}
	reg := cfg.registryKind()
	var rdb goredis.UniversalClient
	if cfg.Backend == "redis" || reg == "redis" {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		if reg != "redis" {
			// registry.Redis closes the client itself
			b.closers = append(b.closers, func() { _ = rdb.Close() })
		}
	}

	p, err := openProvider(ctx, cfg, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	b.provider = p

	switch reg {
	case "redis":
		b.registry = registry.NewRedis(rdb, cfg.Namespace, nil)
	case "provider":
		b.registry = registry.NewInProvider(p, cfg.Namespace, nil)
	default:
		b.registry = registry.NewLocal()
	}

	c, closeCodec, err := openCodec(cfg)
	if err != nil {
		_ = b.registry.Close(ctx)
		_ = p.Close(ctx)
		b.close()
		return nil, err
	}
	b.codec = c
	if closeCodec != nil {
		b.closers = append(b.closers, closeCodec)
	}
	return b, nil
}

// openProvider builds the configured provider. Providers never own rdb;
// openBackends closes it.
func openProvider(ctx context.Context, cfg Config, rdb goredis.UniversalClient) (pr.Provider, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "bigcache":
		return bigcacheprov.New(bigcacheprov.Config{HardMaxCacheSizeMB: cfg.BigcacheMaxMB})
	case "ristretto":
		return ristrettoprov.New(ristrettoprov.Config{
			NumCounters: 1e5,
			MaxCost:     cfg.RistrettoMaxCost,
			BufferItems: 64,
		})
	case "redis":
		return redisprov.New(redisprov.Config{Client: rdb, Prefix: cfg.Prefix})
	case "sqlite":
		return sqliteprov.Open(cfg.SQLitePath)
	case "minio":
		mc, err := minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
			Secure: cfg.MinioSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minioprov.New(minioprov.Config{Client: mc, Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	case "s3":
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.S3Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		return s3prov.New(s3prov.Config{Client: s3.NewFromConfig(awsCfg), Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openCodec stacks base codec, optional compression and optional size limit.
func openCodec(cfg Config) (codec.Codec[offcache.Entry], func(), error) {
	var c codec.Codec[offcache.Entry]
	switch cfg.Codec {
	case "cbor":
		cb, err := codec.NewCBOR[offcache.Entry](true)
		if err != nil {
			return nil, nil, err
		}
		c = cb
	case "json":
		c = codec.JSON[offcache.Entry]{}
	default:
		c = codec.Msgpack[offcache.Entry]{}
	}

	var closeFn func()
	if cfg.Compression != "" {
		cc, err := codec.NewCompressed(c, codec.Algorithm(cfg.Compression))
		if err != nil {
			return nil, nil, err
		}
		c, closeFn = cc, cc.Close
	}
	if cfg.MaxEntryBytes > 0 {
		c = codec.Limit[offcache.Entry]{Inner: c, MaxSize: cfg.MaxEntryBytes}
	}
	return c, closeFn, nil
}
