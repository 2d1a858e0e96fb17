// Package cache keeps served intervals of deterministic models in redis,
// keyed by the hashed feature vector.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	xdr "github.com/davecgh/go-xdr/xdr2"
	"github.com/go-redis/redis/v8"

	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/util"
)

type Config struct {
	// An empty address disables the cache.
	Addr string        `envconfig:"CPI_REDIS_ADDR"`
	DB   int           `envconfig:"CPI_REDIS_DB" default:"0"`
	TTL  time.Duration `envconfig:"CPI_CACHE_TTL" default:"10m"`
}

// Entry is the cached interval of one point.
type Entry struct {
	Pred   float64
	Lower  float64
	Upper  float64
	Var    float64
	HasVar bool
}

type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Close() error
}

// Key returns the cache key of vec for a model generation.
func Key(generation string, vec []float64) string {
	return util.VectorKey("cpi:"+generation, vec)
}

func New(ctx context.Context, cfg *Config) (Cache, error) {
	if cfg.Addr == "" {
		return Noop{}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logging.FromContext(ctx).Infof("interval cache enabled on %s", cfg.Addr)
	return &Redis{client: client, ttl: cfg.TTL}, nil
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	e, err := Decode(data)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, e Entry) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Noop never hits.
type Noop struct{}

func (Noop) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, nil
}

func (Noop) Set(context.Context, string, Entry) error {
	return nil
}

func (Noop) Close() error {
	return nil
}

func Encode(e Entry) ([]byte, error) {
	buf := util.GetBytesBuffer()
	defer util.PutBytesBuffer(buf)
	if _, err := xdr.Marshal(buf, &e); err != nil {
		return nil, fmt.Errorf("xdr encode cache entry: %w", err)
	}
	return append([]byte{}, buf.Bytes()...), nil
}

func Decode(data []byte) (Entry, error) {
	var e Entry
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &e); err != nil {
		return Entry{}, fmt.Errorf("xdr decode cache entry: %w", err)
	}
	return e, nil
}
