package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/offcache/codec"
)

// Redis shares generation metadata across processes and survives restarts.
// All generations of a namespace live in one hash: field = name, value = Meta
// encoded with the configured codec.
type Redis struct {
	rdb   redis.UniversalClient
	ns    string // logical namespace; should match the storage namespace
	codec codec.Codec[Meta]
}

var _ Registry = (*Redis)(nil)

// NewRedis creates a Redis-backed registry. A nil codec defaults to JSON so
// the hash stays readable from redis-cli.
func NewRedis(client redis.UniversalClient, namespace string, c codec.Codec[Meta]) *Redis {
	if c == nil {
		c = codec.JSON[Meta]{}
	}
	return &Redis{rdb: client, ns: namespace, codec: c}
}

func (s *Redis) key() string { return "offcache:registry:" + s.ns }

func (s *Redis) Names(ctx context.Context) ([]string, error) {
	names, err := s.rdb.HKeys(ctx, s.key()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Redis) Get(ctx context.Context, name string) (Meta, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.key(), name).Bytes()
	if err == redis.Nil {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, err
	}
	m, err := s.codec.Decode(raw)
	if err != nil {
		return Meta{}, false, fmt.Errorf("redis registry decode %q: %w", name, err)
	}
	return m, true, nil
}

// Put uses HSETNX so two processes installing the same version cannot both
// seal it.
func (s *Redis) Put(ctx context.Context, m Meta) error {
	raw, err := s.codec.Encode(m)
	if err != nil {
		return err
	}
	ok, err := s.rdb.HSetNX(ctx, s.key(), m.Name, raw).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, name string) error {
	return s.rdb.HDel(ctx, s.key(), name).Err()
}

// Close closes the underlying Redis client.
func (s *Redis) Close(ctx context.Context) error { return s.rdb.Close() }
