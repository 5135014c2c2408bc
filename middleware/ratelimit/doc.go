// Package ratelimit é a camada de admissão HTTP (net/http) do gateway.
//
// Camadas:
//
//   - domain: contratos (CounterStore, WindowTable, StatsStore, SlotPool) e a Decision
//   - application: Limiter com as estratégias remota e local, e o SlotService
//   - infra: clientes REST e Redis, tabela de janelas, token buckets, estatísticas
//   - ratelimit (este pacote): Gatekeeper, headers de segurança e limite de concorrência
//
// Fluxo no Gatekeeper:
//
//  1. /api/ com método fora de GET/POST/OPTIONS -> 405
//  2. rota de classe sensível -> Limiter.Check por (classe, IP do X-Forwarded-For)
//  3. negado -> 429 com Retry-After fixo; backend indisponível -> segue (fail open)
//  4. toda resposta recebe os headers de segurança
package ratelimit
