package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from OFFCACHE_* environment variables.
type Config struct {
	Listen string `env:"LISTEN" envDefault:":8080"`
	Origin string `env:"ORIGIN,required"`

	// Manifest file (.json/.yaml); empty => built-in stop-motion manifest.
	Manifest    string `env:"MANIFEST"`
	Version     string `env:"VERSION"` // overrides the manifest's version
	Namespace   string `env:"NAMESPACE" envDefault:"offcache"`
	SkipWaiting bool   `env:"SKIP_WAITING"`

	Backend    string `env:"BACKEND" envDefault:"memory"`
	Registry   string `env:"REGISTRY" envDefault:"auto"` // auto|local|redis|provider
	RedisAddr  string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"offcache.db"`

	Bucket         string `env:"BUCKET"`
	Prefix         string `env:"PREFIX" envDefault:"offcache/"`
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioSSL       bool   `env:"MINIO_SSL"`
	S3Region       string `env:"S3_REGION"`

	BigcacheMaxMB    int   `env:"BIGCACHE_MAX_MB" envDefault:"256"`
	RistrettoMaxCost int64 `env:"RISTRETTO_MAX_COST" envDefault:"268435456"`

	Codec         string `env:"CODEC" envDefault:"msgpack"`
	Compression   string `env:"COMPRESSION"`
	MaxEntryBytes int    `env:"MAX_ENTRY_BYTES"`

	FetchRPS           float64       `env:"FETCH_RPS"`
	FetchTimeout       time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	InstallConcurrency int           `env:"INSTALL_CONCURRENCY" envDefault:"8"`
	ClientIdle         time.Duration `env:"CLIENT_IDLE" envDefault:"30m"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"slog"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	OtelEndpoint string `env:"OTEL_ENDPOINT"`
}

func parseConfig() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "OFFCACHE_"})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.Origin)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("OFFCACHE_ORIGIN must be an absolute URL, got %q", c.Origin)
	}
	if err := oneOf("OFFCACHE_BACKEND", c.Backend,
		"memory", "bigcache", "ristretto", "redis", "minio", "s3", "sqlite"); err != nil {
		return err
	}
	if err := oneOf("OFFCACHE_REGISTRY", c.Registry, "auto", "local", "redis", "provider"); err != nil {
		return err
	}
	if err := oneOf("OFFCACHE_CODEC", c.Codec, "msgpack", "cbor", "json"); err != nil {
		return err
	}
	if err := oneOf("OFFCACHE_COMPRESSION", c.Compression, "", "zstd", "lz4"); err != nil {
		return err
	}
	if err := oneOf("OFFCACHE_LOG_FORMAT", c.LogFormat, "slog", "zap", "logrus"); err != nil {
		return err
	}
	if (c.Backend == "minio" || c.Backend == "s3") && c.Bucket == "" {
		return fmt.Errorf("OFFCACHE_BUCKET is required for backend %s", c.Backend)
	}
	if c.Backend == "minio" && c.MinioEndpoint == "" {
		return fmt.Errorf("OFFCACHE_MINIO_ENDPOINT is required for backend minio")
	}
	// entries in a process-local provider vanish with the process; a shared
	// registry would then point at missing data
	reg := c.registryKind()
	if reg == "redis" && isLocalBackend(c.Backend) {
		return fmt.Errorf("OFFCACHE_REGISTRY=redis needs a shared backend, got %s", c.Backend)
	}
	// a process-local registry forgets persisted generations on restart and
	// they are never deleted
	if reg == "local" && !isLocalBackend(c.Backend) {
		return fmt.Errorf("OFFCACHE_REGISTRY=local cannot track persistent backend %s", c.Backend)
	}
	if reg == "provider" && (c.Backend == "bigcache" || c.Backend == "ristretto") {
		return fmt.Errorf("OFFCACHE_REGISTRY=provider needs a non-evicting backend, got %s", c.Backend)
	}
	return nil
}

// registryKind resolves "auto" (or empty) to the registry matching the backend.
func (c Config) registryKind() string {
	if c.Registry != "" && c.Registry != "auto" {
		return c.Registry
	}
	switch {
	case isLocalBackend(c.Backend):
		return "local"
	case c.Backend == "redis":
		return "redis"
	default:
		return "provider"
	}
}

func isLocalBackend(b string) bool {
	return b == "memory" || b == "bigcache" || b == "ristretto"
}

func oneOf(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported value %q", name, v)
}
