package gqlgate

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"graphql-gate/middleware/gqlgate/application"
	"graphql-gate/middleware/gqlgate/complexity"
	"graphql-gate/middleware/gqlgate/domain"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	// Schema valida as queries; Table dá o custo. Ambos são obrigatórios.
	Schema *ast.Schema
	Table  *complexity.Table

	// Service decide a admissão (bucket + serializer). Sem bucket, tudo passa.
	Service application.Service

	Stats domain.StatsStore

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// Dark computa e loga as rejeições mas deixa todas as queries passarem.
	Dark bool

	// DepthLimit rejeita queries mais profundas que o limite. Zero = sem limite.
	DepthLimit int

	RejectStatus        int
	AddRateLimitHeaders bool

	// Now permite injetar o relógio em testes.
	Now func() time.Time
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware monta o gate: parse → validação → custo → admissão → repasse.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			req, body, err := parseRequest(r)
			if err != nil {
				writeErrors(w, http.StatusBadRequest, "malformed GraphQL request: "+err.Error())
				return
			}

			doc, listErr := gqlparser.LoadQuery(opts.Schema, req.Query)
			if len(listErr) > 0 {
				msgs := make([]string, 0, len(listErr))
				for _, e := range listErr {
					msgs = append(msgs, e.Message)
				}
				writeErrors(w, http.StatusBadRequest, msgs...)
				return
			}

			res, err := complexity.Analyze(doc, req.Variables, opts.Table)
			if err != nil {
				if errors.Is(err, complexity.ErrInvalidMultiplier) {
					writeErrors(w, http.StatusBadRequest, err.Error())
					return
				}
				writeErrors(w, http.StatusInternalServerError, err.Error())
				return
			}

			if opts.DepthLimit > 0 && res.Depth > opts.DepthLimit {
				writeErrors(w, http.StatusBadRequest,
					"query depth "+formatInt(res.Depth)+" exceeds the limit of "+formatInt(opts.DepthLimit))
				return
			}

			now := opts.Now()
			dec, err := opts.Service.Admit(r.Context(), domain.Key(key), now, res.Cost)
			if err != nil {
				writeErrors(w, http.StatusInternalServerError, "admission failed: "+err.Error())
				return
			}

			rec := Record{
				At:         now,
				Complexity: res.Cost,
				Depth:      res.Depth,
				Tokens:     dec.Tokens,
				Success:    dec.Allowed,
			}

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:        domain.Key(key),
					Allowed:    dec.Allowed,
					Operation:  operationName(doc, req.OperationName),
					Complexity: res.Cost,
					Depth:      res.Depth,
					Tokens:     dec.Tokens,
					At:         now,
				})
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				w.Header().Set("X-RateLimit-Complexity", formatInt(res.Cost))
				w.Header().Set("X-RateLimit-Tokens", formatFloat(dec.Tokens))
			}

			if !dec.Allowed {
				if !opts.Dark {
					w.Header().Set("Retry-After", formatInt(ceilSeconds(dec.RetryAfter)))
					writeErrors(w, opts.RejectStatus,
						"query of complexity "+formatInt(res.Cost)+" exceeds the available budget")
					return
				}
				log.Printf("gqlgate dark mode: would reject key=%q complexity=%d tokens=%s retryAfter=%s",
					key, res.Cost, formatFloat(dec.Tokens), dec.RetryAfter)
			}

			restoreBody(r, body)
			next.ServeHTTP(w, r.WithContext(withRecord(r.Context(), rec)))
		})
	}
}

func operationName(doc *ast.QueryDocument, fromRequest string) string {
	if fromRequest != "" {
		return fromRequest
	}
	for _, op := range doc.Operations {
		if op.Name != "" {
			return op.Name
		}
	}
	return ""
}

// writeErrors responde no formato de erro GraphQL, que o cliente do upstream
// já sabe ler.
func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	type gqlErr struct {
		Message string `json:"message"`
	}
	payload := struct {
		Errors []gqlErr `json:"errors"`
	}{}
	for _, m := range msgs {
		payload.Errors = append(payload.Errors, gqlErr{Message: m})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
