// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisBucket: token bucket distribuído com refill preguiçoso via script Lua atômico
//   - MemoryBucket: token bucket local usando golang.org/x/time/rate (dev/teste/instância única)
//   - NewChanPool: semáforo simples para limite de concorrência
//   - RedisStatsStore / MemoryStatsStore: persistência de estatísticas de decisão
package infra
