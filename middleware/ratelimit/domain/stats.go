package domain

import (
	"context"
	"time"
)

// Outcome é o desfecho de um portão de admissão para uma requisição.
type Outcome string

const (
	OutcomeAllowed       Outcome = "allowed"
	OutcomeDenied        Outcome = "denied"
	OutcomeUnavailable   Outcome = "unavailable"
	OutcomeMethodBlocked Outcome = "method_blocked"
	OutcomeBurstDenied   Outcome = "burst_denied"
)

// StatsEvent representa um evento de decisão do gatekeeper.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis).
type StatsEvent struct {
	Key     Key
	Class   string
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// StatsSnapshot é a leitura agregada exposta no endpoint de estatísticas.
type StatsSnapshot struct {
	Total   map[Outcome]int64            `json:"total"`
	ByClass map[string]map[Outcome]int64 `json:"by_class"`
	// ByKey só vem preenchido quando o store conta por chave.
	ByKey   map[string]map[Outcome]int64 `json:"by_key,omitempty"`
	// Dropped conta eventos descartados por fila cheia.
	Dropped int64                        `json:"dropped,omitempty"`
}

// StatsReader é implementado pelos stores que sabem devolver um snapshot.
type StatsReader interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}
