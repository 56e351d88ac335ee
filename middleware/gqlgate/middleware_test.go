package gqlgate

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"graphql-gate/middleware/gqlgate/application"
	"graphql-gate/middleware/gqlgate/complexity"
	"graphql-gate/middleware/gqlgate/infra"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

const testSDL = `
type Review {
  stars: Int
}

type Query {
  version: String
  reviews(first: Int = 5): [Review]
}
`

func testGate(t *testing.T, capacity int, refillRate float64, mutate func(*Options)) (http.Handler, *int) {
	t.Helper()

	schema := gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: testSDL})
	table, err := complexity.BuildTable(schema)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"data":{}}`)
	})

	base := time.Now()
	opts := Options{
		Schema: schema,
		Table:  table,
		Service: application.Service{
			Bucket:     infra.NewMemoryBucket(capacity, refillRate),
			Serializer: application.NewSerializer(),
		},
		Now: func() time.Time { return base },
	}
	if mutate != nil {
		mutate(&opts)
	}

	return Middleware(opts)(next), &calls
}

func postQuery(h http.Handler, query string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]any{"query": query})
	r := httptest.NewRequest(http.MethodPost, "http://example/graphql", strings.NewReader(string(body)))
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_AdmitsThenRejectsSameKey(t *testing.T) {
	// capacidade 10: query de custo 6 passa, a segunda idêntica não
	h, calls := testGate(t, 10, 1, nil)

	w1 := postQuery(h, `query { reviews { stars } }`)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w1.Code, w1.Body.String())
	}

	w2 := postQuery(h, `query { reviews { stars } }`)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := strings.TrimSpace(w2.Header().Get("Retry-After")); got != "2" {
		// faltam 2 tokens a 1/s
		t.Fatalf("expected Retry-After=2, got %q", got)
	}
	if !strings.Contains(w2.Body.String(), "errors") {
		t.Fatalf("expected GraphQL error payload, got %s", w2.Body.String())
	}

	if *calls != 1 {
		t.Fatalf("expected upstream to be called once, got %d", *calls)
	}
}

func TestMiddleware_DarkModeAdmitsRejections(t *testing.T) {
	h, calls := testGate(t, 10, 1, func(o *Options) { o.Dark = true })

	w1 := postQuery(h, `query { reviews { stars } }`)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	w2 := postQuery(h, `query { reviews { stars } }`)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected dark mode to admit, got %d", w2.Code)
	}
	if *calls != 2 {
		t.Fatalf("expected upstream to be called twice, got %d", *calls)
	}
}

func TestMiddleware_RecordReachesUpstream(t *testing.T) {
	schema := gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: testSDL})
	table, err := complexity.BuildTable(schema)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	var rec Record
	var found bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, found = RecordFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Schema: schema,
		Table:  table,
		Service: application.Service{
			Bucket:     infra.NewMemoryBucket(10, 1),
			Serializer: application.NewSerializer(),
		},
	})(next)

	w := postQuery(h, `query { reviews(first: 3) { stars } }`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !found {
		t.Fatalf("expected a Record in the upstream context")
	}
	if rec.Complexity != 4 {
		t.Fatalf("expected complexity 4, got %d", rec.Complexity)
	}
	if !rec.Success {
		t.Fatalf("expected Success=true")
	}
	if rec.Tokens != 6 {
		t.Fatalf("expected 6 tokens left, got %v", rec.Tokens)
	}
}

func TestMiddleware_UpstreamStillReadsTheBody(t *testing.T) {
	schema := gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: testSDL})
	table, err := complexity.BuildTable(schema)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	var upstreamBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		upstreamBody = string(b)
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Schema: schema,
		Table:  table,
		Service: application.Service{
			Bucket:     infra.NewMemoryBucket(10, 1),
			Serializer: application.NewSerializer(),
		},
	})(next)

	w := postQuery(h, `query { version }`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(upstreamBody, "version") {
		t.Fatalf("expected upstream to see the original body, got %q", upstreamBody)
	}
}

func TestMiddleware_MalformedBodyIs400(t *testing.T) {
	h, calls := testGate(t, 10, 1, nil)

	r := httptest.NewRequest(http.MethodPost, "http://example/graphql", strings.NewReader(`{not json`))
	r.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if *calls != 0 {
		t.Fatalf("expected upstream not to be called")
	}
}

func TestMiddleware_InvalidQueryIs400WithValidatorErrors(t *testing.T) {
	h, calls := testGate(t, 10, 1, nil)

	w := postQuery(h, `query { nope }`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "errors") {
		t.Fatalf("expected validator error payload, got %s", w.Body.String())
	}
	if *calls != 0 {
		t.Fatalf("expected upstream not to be called")
	}
}

func TestMiddleware_NonIntegerVariableIs400(t *testing.T) {
	h, _ := testGate(t, 10, 1, nil)

	body, _ := json.Marshal(map[string]any{
		"query":     `query ($n: Int) { reviews(first: $n) { stars } }`,
		"variables": map[string]any{"n": 2.5},
	})
	r := httptest.NewRequest(http.MethodPost, "http://example/graphql", strings.NewReader(string(body)))
	r.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMiddleware_DepthLimitRejects(t *testing.T) {
	h, calls := testGate(t, 100, 1, func(o *Options) { o.DepthLimit = 1 })

	w := postQuery(h, `query { reviews(first: 1) { stars } }`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for depth over the limit, got %d", w.Code)
	}
	if *calls != 0 {
		t.Fatalf("expected upstream not to be called")
	}
}

func TestMiddleware_GetQuerystringIsAccepted(t *testing.T) {
	h, _ := testGate(t, 10, 1, nil)

	r := httptest.NewRequest(http.MethodGet, "http://example/graphql?query=query%20%7B%20version%20%7D", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestMiddleware_AddRateLimitHeaders(t *testing.T) {
	h, _ := testGate(t, 10, 1, func(o *Options) { o.AddRateLimitHeaders = true })

	w := postQuery(h, `query { reviews(first: 3) { stars } }`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Complexity"); got != "4" {
		t.Fatalf("expected X-RateLimit-Complexity=4, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Tokens"); got != "6" {
		t.Fatalf("expected X-RateLimit-Tokens=6, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Key"); got == "" {
		t.Fatalf("expected X-RateLimit-Key header to be set")
	}
}

func TestMiddleware_KeysHaveIndependentBudgets(t *testing.T) {
	h, calls := testGate(t, 10, 1, func(o *Options) { o.KeyHeader = "X-Api-Key" })

	send := func(key string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]any{"query": `query { reviews { stars } }`})
		r := httptest.NewRequest(http.MethodPost, "http://example/graphql", strings.NewReader(string(body)))
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("X-Api-Key", key)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	if w := send("k1"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for k1, got %d", w.Code)
	}
	if w := send("k2"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for k2 (own bucket), got %d", w.Code)
	}
	if *calls != 2 {
		t.Fatalf("expected both requests to reach upstream, got %d", *calls)
	}
}

func TestMiddleware_StatsAreRecorded(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	h, _ := testGate(t, 10, 1, func(o *Options) { o.Stats = stats })

	_ = postQuery(h, `query { reviews { stars } }`)
	_ = postQuery(h, `query { reviews { stars } }`)

	total := stats.Total()
	if total.Allowed != 1 || total.Denied != 1 {
		t.Fatalf("unexpected stats totals: %+v", total)
	}
}
