package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"graphql-gate/middleware/gqlgate"
	"graphql-gate/middleware/gqlgate/application"
	"graphql-gate/middleware/gqlgate/complexity"
	"graphql-gate/middleware/gqlgate/infra"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

const schemaSDL = `
type Review {
  stars: Int
  commentary: String
}

type Human {
  name: String
  friends(first: Int): [Human]
}

type Query {
  reviews(first: Int = 5): [Review]
  human(id: ID): Human
}
`

func main() {
	// Exemplo: injetando o gate diretamente no seu webserver (sem proxy)
	schema := gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL})

	table, err := complexity.BuildTable(schema)
	if err != nil {
		log.Fatalf("building weight table: %v", err)
	}

	bucket := infra.NewMemoryBucket(100, 10)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	bucket.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		// um resolver de verdade entraria aqui; o exemplo só ecoa a decisão
		rec, _ := gqlgate.RecordFromContext(r.Context())
		log.Printf("admitted query: complexity=%d depth=%d tokens=%.1f", rec.Complexity, rec.Depth, rec.Tokens)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	h := http.Handler(mux)
	h = gqlgate.ConcurrencyMiddleware(gqlgate.ConcurrencyOptions{Max: 50})(h)
	h = gqlgate.Middleware(gqlgate.Options{
		Schema: schema,
		Table:  table,
		Service: application.Service{
			Bucket:     bucket,
			Serializer: application.NewSerializer(),
		},
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
