package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"graphql-gate/middleware/gqlgate"
	"graphql-gate/middleware/gqlgate/application"
	"graphql-gate/middleware/gqlgate/complexity"
	"graphql-gate/middleware/gqlgate/domain"
	"graphql-gate/middleware/gqlgate/infra"

	"github.com/redis/go-redis/v9"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	sdl, err := os.ReadFile(cfg.schemaFile)
	if err != nil {
		log.Fatalf("reading SCHEMA_FILE: %v", err)
	}
	schema, gqlErr := gqlparser.LoadSchema(&ast.Source{Name: cfg.schemaFile, Input: string(sdl)})
	if gqlErr != nil {
		log.Fatalf("loading schema: %v", gqlErr)
	}

	table, err := complexity.BuildTable(schema,
		complexity.WithTypeWeights(cfg.weights),
		complexity.WithSlicingArguments(cfg.slicingArgs...),
		complexity.WithEnforceBoundedLists(cfg.enforceLists),
		complexity.WithDefaultListSize(cfg.defaultListSize),
	)
	if err != nil {
		log.Fatalf("building weight table: %v", err)
	}

	var rdb *redis.Client
	if cfg.redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			log.Fatalf("redis ping error: %v", err)
		}
	} else {
		log.Printf("REDIS_ADDR not set: using in-memory bucket (single instance only)")
	}

	bucket, err := infra.NewBucket(cfg.algorithm, infra.BucketConfig{
		Capacity:   cfg.bucketSize,
		RefillRate: cfg.refillRate,
		KeyExpiry:  cfg.keyExpiry,
	}, rdb)
	if err != nil {
		log.Fatalf("rate limiter setup: %v", err)
	}

	var statsStore domain.StatsStore
	if cfg.statsEnabled {
		if rdb == nil {
			log.Fatalf("STATS_ENABLED=true requires REDIS_ADDR")
		}
		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if mem, ok := bucket.(*infra.MemoryBucket); ok {
		mem.StartJanitor(ctx)
	}

	h := http.Handler(proxy)
	h = gqlgate.ConcurrencyMiddleware(gqlgate.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	h = gqlgate.Middleware(gqlgate.Options{
		Schema: schema,
		Table:  table,
		Service: application.Service{
			Bucket:     bucket,
			Serializer: application.NewSerializer(),
		},
		Stats:               statsStore,
		KeyHeader:           cfg.rateKeyHeader,
		TrustXForwardedFor:  cfg.trustXFF,
		Dark:                cfg.dark,
		DepthLimit:          cfg.depthLimit,
		RejectStatus:        http.StatusTooManyRequests,
		AddRateLimitHeaders: cfg.addHeaders,
	})(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("gqlgate listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("bucket: algorithm=%s size=%d refillRate=%.3f keyExpiry=%s redis=%q", cfg.algorithm, cfg.bucketSize, cfg.refillRate, cfg.keyExpiry, cfg.redisAddr)
	log.Printf("weights: mutation=%d object=%d scalar=%d connection=%d slicingArgs=%v", cfg.weights.Mutation, cfg.weights.Object, cfg.weights.Scalar, cfg.weights.Connection, cfg.slicingArgs)
	log.Printf("gate: dark=%v depthLimit=%d enforceBoundedLists=%v keyHeader=%q trustXFF=%v", cfg.dark, cfg.depthLimit, cfg.enforceLists, cfg.rateKeyHeader, cfg.trustXFF)
	log.Printf("concurrency: max=%d acquireTimeout=%s", cfg.concurrencyMax, cfg.concurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type config struct {
	listenAddr  string
	upstreamURL string
	schemaFile  string

	algorithm  domain.Algorithm
	bucketSize int
	refillRate float64
	keyExpiry  time.Duration

	weights         complexity.TypeWeights
	slicingArgs     []string
	enforceLists    bool
	defaultListSize int
	depthLimit      int
	dark            bool

	rateKeyHeader string
	trustXFF      bool
	addHeaders    bool

	redisAddr     string
	redisPassword string
	redisDB       int

	concurrencyMax     int
	concurrencyTimeout time.Duration

	statsEnabled   bool
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.schemaFile = os.Getenv("SCHEMA_FILE")

	alg, err := domain.ParseAlgorithm(getenvDefault("RATE_LIMITER_TYPE", string(domain.TokenBucket)))
	if err != nil {
		return config{}, err
	}
	cfg.algorithm = alg

	cfg.bucketSize = getenvIntDefault("BUCKET_SIZE", 500)
	cfg.refillRate = getenvFloatDefault("REFILL_RATE", 10)
	cfg.keyExpiry = getenvDurationDefault("KEY_EXPIRY", 24*time.Hour)

	w := complexity.DefaultTypeWeights()
	w.Mutation = getenvIntDefault("TYPE_WEIGHT_MUTATION", w.Mutation)
	w.Object = getenvIntDefault("TYPE_WEIGHT_OBJECT", w.Object)
	w.Scalar = getenvIntDefault("TYPE_WEIGHT_SCALAR", w.Scalar)
	w.Connection = getenvIntDefault("TYPE_WEIGHT_CONNECTION", w.Connection)
	cfg.weights = w

	cfg.slicingArgs = splitList(getenvDefault("SLICING_ARGS", "first,last,limit"))
	cfg.enforceLists = getenvBoolDefault("ENFORCE_BOUNDED_LISTS", false)
	cfg.defaultListSize = getenvIntDefault("DEFAULT_LIST_SIZE", 1)
	cfg.depthLimit = getenvIntDefault("DEPTH_LIMIT", 0)
	cfg.dark = getenvBoolDefault("DARK", false)

	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.statsEnabled = getenvBoolDefault("STATS_ENABLED", false)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "gqlgate:stats")
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.schemaFile == "" {
		return config{}, errors.New("SCHEMA_FILE is required")
	}
	if cfg.bucketSize <= 0 {
		return config{}, errors.New("BUCKET_SIZE must be > 0")
	}
	if cfg.refillRate <= 0 {
		return config{}, errors.New("REFILL_RATE must be > 0")
	}
	if cfg.keyExpiry <= 0 {
		return config{}, errors.New("KEY_EXPIRY must be > 0")
	}
	if cfg.depthLimit < 0 {
		return config{}, errors.New("DEPTH_LIMIT must be >= 0 (0 = unbounded)")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
