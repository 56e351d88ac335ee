package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"graphql-gate/middleware/gqlgate/domain"

	"github.com/redis/go-redis/v9"
)

// takeScript faz o ciclo ler-refil-decidir-escrever como uma única operação
// no servidor. O saldo volta como string porque o protocolo trunca números
// Lua para inteiro.
var takeScript = redis.NewScript(`
local key      = KEYS[1]
local now      = tonumber(ARGV[1])
local cost     = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local rate     = tonumber(ARGV[4])
local expiry   = tonumber(ARGV[5])

local state  = redis.call("HMGET", key, "tokens", "lastRefill")
local tokens = tonumber(state[1])
local last   = tonumber(state[2])
if tokens == nil or last == nil then
    tokens = capacity
    last = now
end

tokens = math.min(capacity, tokens + rate * (now - last) / 1000)

local allowed = 0
local retry = 0
if tokens >= cost then
    allowed = 1
    tokens = tokens - cost
else
    retry = math.ceil((cost - tokens) * 1000 / rate)
end

redis.call("HSET", key, "tokens", tokens, "lastRefill", now)
redis.call("PEXPIRE", key, expiry)

return {allowed, tostring(tokens), retry}
`)

// RedisBucket é um token bucket por chave compartilhado entre instâncias do
// gate via Redis. Take é atômico (script Lua), mas não serializa chamadas
// concorrentes da mesma chave; isso fica com application.Serializer.
type RedisBucket struct {
	rdb *redis.Client

	capacity   int
	refillRate float64
	keyExpiry  time.Duration
	prefix     string
}

type RedisBucketOption func(*RedisBucket)

// WithKeyExpiry define o TTL aplicado à chave em toda escrita.
// O padrão é 24h.
func WithKeyExpiry(d time.Duration) RedisBucketOption {
	return func(b *RedisBucket) { b.keyExpiry = d }
}

func WithBucketPrefix(prefix string) RedisBucketOption {
	return func(b *RedisBucket) { b.prefix = strings.Trim(prefix, ":") }
}

// NewRedisBucket cria o bucket com capacidade máxima capacity e refil de
// refillRate tokens por segundo.
func NewRedisBucket(rdb *redis.Client, capacity int, refillRate float64, opts ...RedisBucketOption) *RedisBucket {
	b := &RedisBucket{
		rdb:        rdb,
		capacity:   capacity,
		refillRate: refillRate,
		keyExpiry:  24 * time.Hour,
		prefix:     "gqlgate:bucket",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBucket) Capacity() int       { return b.capacity }
func (b *RedisBucket) RefillRate() float64 { return b.refillRate }

func (b *RedisBucket) key(k domain.Key) string {
	return b.prefix + ":" + string(k)
}

// Take implementa domain.Bucket. O timeout da ida ao Redis é governado pelo ctx.
func (b *RedisBucket) Take(ctx context.Context, key domain.Key, now time.Time, cost int) (domain.Decision, error) {
	res, err := takeScript.Run(ctx, b.rdb,
		[]string{b.key(key)},
		now.UnixMilli(),
		cost,
		b.capacity,
		b.refillRate,
		b.keyExpiry.Milliseconds(),
	).Result()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("bucket take: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 3 {
		return domain.Decision{}, fmt.Errorf("bucket take: unexpected reply %v", res)
	}

	allowed, ok := reply[0].(int64)
	if !ok {
		return domain.Decision{}, fmt.Errorf("bucket take: unexpected allowed %v", reply[0])
	}
	rawTokens, ok := reply[1].(string)
	if !ok {
		return domain.Decision{}, fmt.Errorf("bucket take: unexpected tokens %v", reply[1])
	}
	tokens, err := strconv.ParseFloat(rawTokens, 64)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("bucket take: parsing tokens: %w", err)
	}
	retryMs, ok := reply[2].(int64)
	if !ok {
		return domain.Decision{}, fmt.Errorf("bucket take: unexpected retry %v", reply[2])
	}

	dec := domain.Decision{
		Allowed: allowed == 1,
		Tokens:  tokens,
	}
	if !dec.Allowed {
		dec.RetryAfter = time.Duration(retryMs) * time.Millisecond
	}
	return dec, nil
}
