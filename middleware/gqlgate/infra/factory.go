package infra

import (
	"errors"
	"fmt"
	"time"

	"graphql-gate/middleware/gqlgate/domain"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotImplemented = errors.New("rate limiter algorithm not implemented")
	ErrBadBucketSize  = errors.New("bucket size must be > 0")
	ErrBadRefillRate  = errors.New("refill rate must be > 0")
)

// BucketConfig agrupa os parâmetros do token bucket.
type BucketConfig struct {
	Capacity   int
	RefillRate float64
	// KeyExpiry é o TTL da chave no store distribuído. Zero usa o padrão de 24h.
	KeyExpiry time.Duration
}

func (c BucketConfig) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: %d", ErrBadBucketSize, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: %v", ErrBadRefillRate, c.RefillRate)
	}
	return nil
}

// NewBucket é a fábrica de buckets por algoritmo.
//
// Só TOKEN_BUCKET existe de fato; as demais tags são reconhecidas na
// configuração mas falham aqui, no setup, antes de aceitar request.
// Com rdb == nil o bucket é local (MemoryBucket).
func NewBucket(alg domain.Algorithm, cfg BucketConfig, rdb *redis.Client) (domain.Bucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	switch alg {
	case domain.TokenBucket:
	case domain.LeakyBucket, domain.FixedWindow, domain.SlidingWindowLog, domain.SlidingWindowCounter:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, alg)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAlgorithm, alg)
	}

	if rdb == nil {
		return NewMemoryBucket(cfg.Capacity, cfg.RefillRate), nil
	}

	opts := []RedisBucketOption{}
	if cfg.KeyExpiry > 0 {
		opts = append(opts, WithKeyExpiry(cfg.KeyExpiry))
	}
	return NewRedisBucket(rdb, cfg.Capacity, cfg.RefillRate, opts...), nil
}
