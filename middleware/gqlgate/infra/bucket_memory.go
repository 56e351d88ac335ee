package infra

import (
	"context"
	"sync"
	"time"

	"graphql-gate/middleware/gqlgate/domain"

	"golang.org/x/time/rate"
)

// MemoryBucket é um token bucket local (x/time/rate) com cache por chave e
// limpeza periódica. Serve para desenvolvimento, testes e instância única;
// em produção com mais de uma instância use o RedisBucket.
type MemoryBucket struct {
	mu           sync.Mutex
	entries      map[domain.Key]*bucketEntry
	capacity     int
	refillRate   rate.Limit
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type MemoryBucketOption func(*MemoryBucket)

func WithIdleTTL(d time.Duration) MemoryBucketOption {
	return func(b *MemoryBucket) { b.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) MemoryBucketOption {
	return func(b *MemoryBucket) { b.cleanupEvery = d }
}

func NewMemoryBucket(capacity int, refillRate float64, opts ...MemoryBucketOption) *MemoryBucket {
	b := &MemoryBucket{
		entries:      make(map[domain.Key]*bucketEntry),
		capacity:     capacity,
		refillRate:   rate.Limit(refillRate),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBucket) Capacity() int               { return b.capacity }
func (b *MemoryBucket) RefillRate() float64         { return float64(b.refillRate) }
func (b *MemoryBucket) CleanupEvery() time.Duration { return b.cleanupEvery }

func (b *MemoryBucket) limiter(key domain.Key, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ent, ok := b.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(b.refillRate, b.capacity)
	b.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Take implementa domain.Bucket. ReserveN faz leitura, refil e débito sob o
// lock do próprio limiter; na rejeição a reserva é desfeita por CancelAt, numa
// segunda chamada, então o par reserva+cancelamento não é um passo único.
// Chamadas concorrentes da mesma chave ficam a cargo do Serializer.
func (b *MemoryBucket) Take(_ context.Context, key domain.Key, now time.Time, cost int) (domain.Decision, error) {
	lim := b.limiter(key, now)

	r := lim.ReserveN(now, cost)
	if !r.OK() {
		// custo maior que a capacidade: nunca haverá saldo suficiente
		return domain.Decision{
			Allowed: false,
			Tokens:  lim.TokensAt(now),
		}, nil
	}

	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return domain.Decision{
			Allowed:    false,
			Tokens:     lim.TokensAt(now),
			RetryAfter: delay,
		}, nil
	}

	return domain.Decision{Allowed: true, Tokens: lim.TokensAt(now)}, nil
}

func (b *MemoryBucket) Cleanup() {
	cutoff := time.Now().Add(-b.idleTTL)

	b.mu.Lock()
	defer b.mu.Unlock()

	for k, ent := range b.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(b.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (b *MemoryBucket) StartJanitor(ctx DoneContext) {
	if b.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(b.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				b.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo de que o janitor precisa: aceita um context.Context
// ou qualquer valor com Done().
type DoneContext interface {
	Done() <-chan struct{}
}
