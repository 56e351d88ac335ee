package gqlgate

import (
	"context"
	"time"
)

// Record é o registro estruturado de uma decisão do gate, anexado ao contexto
// da request para inspeção pelo handler seguinte.
//
// Em dark mode uma rejeição vira admissão com Success=false.
type Record struct {
	At         time.Time
	Complexity int
	Depth      int
	Tokens     float64
	Success    bool
}

type recordCtxKey struct{}

func withRecord(ctx context.Context, rec Record) context.Context {
	return context.WithValue(ctx, recordCtxKey{}, rec)
}

// RecordFromContext recupera o Record anexado pelo middleware, se houver.
func RecordFromContext(ctx context.Context) (Record, bool) {
	rec, ok := ctx.Value(recordCtxKey{}).(Record)
	return rec, ok
}
