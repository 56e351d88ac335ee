// Package gqlgate fornece o adapter HTTP (net/http) do gate de admissão de
// queries GraphQL por custo.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - complexity: tabela de pesos derivada do schema + análise estática do custo
//   - application: casos de uso (serialização FIFO por cliente, admissão, acquire/timeout)
//   - infra: implementações concretas (bucket Redis/memória, semáforo, stats)
//   - gqlgate (este pacote): middleware HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF)
//  2. Faz parse e validação da query contra o schema
//  3. Calcula o custo estático com a tabela de pesos
//  4. Chama a camada application para admitir (serializada por chave)
//  5. Se bloqueado, responde 429 com Retry-After; em dark mode, loga e deixa passar
//  6. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como BUCKET_SIZE, REFILL_RATE, DEPTH_LIMIT e DARK.
package gqlgate
