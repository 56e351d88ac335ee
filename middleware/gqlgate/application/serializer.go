package application

import (
	"context"
	"sync"

	"graphql-gate/middleware/gqlgate/domain"

	"github.com/google/uuid"
)

// Serializer garante que, para cada chave, exista no máximo uma admissão em
// voo contra o bucket, e que as chamadas em espera completem em ordem de
// chegada (FIFO por chave; sem ordem entre chaves).
//
// O mutex protege apenas a manipulação das filas; ele nunca é segurado
// durante a chamada de I/O ao bucket.
type Serializer struct {
	mu     sync.Mutex
	queues map[domain.Key][]*pending
}

type pending struct {
	// token identifica a chamada na fila (aparece em logs de debug se preciso).
	token string
	// wake é fechado pelo antecessor quando chega a vez desta chamada.
	wake chan struct{}
	// cancelled marca chamadas abandonadas antes de acordar; o avanço da fila
	// as pula sem executar o bucket.
	cancelled bool
}

func NewSerializer() *Serializer {
	return &Serializer{queues: make(map[domain.Key][]*pending)}
}

// Do executa fn para a chave respeitando a serialização FIFO.
//
// Qualquer desfecho de fn (sucesso ou erro) avança a fila: um erro do store
// nunca deixa as chamadas seguintes presas. Se o ctx encerrar enquanto a
// chamada espera a vez, a entrada é marcada e pulada no avanço; se o ctx
// encerrar depois de acordar, a fila avança do mesmo jeito.
func (s *Serializer) Do(ctx context.Context, key domain.Key, fn func() (domain.Decision, error)) (domain.Decision, error) {
	p := &pending{token: uuid.NewString(), wake: make(chan struct{})}

	s.mu.Lock()
	q := s.queues[key]
	s.queues[key] = append(q, p)
	first := len(q) == 0
	s.mu.Unlock()

	if !first {
		select {
		case <-p.wake:
		case <-ctx.Done():
			s.mu.Lock()
			select {
			case <-p.wake:
				// Acordou na mesma janela do cancelamento: somos a cabeça da
				// fila e ninguém mais vai nos acordar. Avança mesmo assim.
				s.mu.Unlock()
				s.advance(key, p)
			default:
				p.cancelled = true
				s.mu.Unlock()
			}
			return domain.Decision{}, ctx.Err()
		}
	}

	dec, err := fn()
	s.advance(key, p)
	return dec, err
}

// advance remove p da cabeça da fila, pula entradas canceladas e acorda a
// próxima viva. Fila vazia é removida do mapa.
func (s *Serializer) advance(key domain.Key, p *pending) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[key]
	if len(q) > 0 && q[0] == p {
		q = q[1:]
	}
	for len(q) > 0 && q[0].cancelled {
		q = q[1:]
	}
	if len(q) == 0 {
		delete(s.queues, key)
		return
	}
	s.queues[key] = q
	close(q[0].wake)
}

// pendingCount existe para observar o tamanho da fila em testes.
func (s *Serializer) pendingCount(key domain.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[key])
}
