package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do gate.
//
// Ele é propositalmente "agnóstico de HTTP": Operation é o nome da operação
// GraphQL (pode ser vazio para operações anônimas).
//
// Observação: cuidado com cardinalidade (ex.: salvar Key sem controle pode
// explodir o número de séries/chaves em uma base como Redis).
type StatsEvent struct {
	Key     Key
	Allowed bool

	Operation  string
	Complexity int
	Depth      int
	Tokens     float64

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do gate.
//
// Implementações podem armazenar em Redis, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
