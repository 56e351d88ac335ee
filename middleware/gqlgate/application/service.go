package application

import (
	"context"
	"time"

	"graphql-gate/middleware/gqlgate/domain"
)

// Service concentra a regra de aplicação da admissão.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// A chamada ao bucket passa pelo serializer, de modo que os ciclos
// read-modify-write de uma mesma chave nunca se intercalem.
type Service struct {
	Bucket     domain.Bucket
	Serializer *Serializer
}

// Admit decide se uma ação de custo cost pode prosseguir agora para a chave.
func (s Service) Admit(ctx context.Context, key domain.Key, now time.Time, cost int) (domain.Decision, error) {
	if s.Bucket == nil {
		return domain.Decision{Allowed: true}, nil
	}

	take := func() (domain.Decision, error) {
		return s.Bucket.Take(ctx, key, now, cost)
	}

	if s.Serializer == nil {
		return take()
	}
	return s.Serializer.Do(ctx, key, take)
}
