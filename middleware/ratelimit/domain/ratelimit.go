package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

// Key identifica um contador (classe de rota + cliente [+ janela]).
// É opaca para quem consome; cada estratégia define o próprio formato.
type Key string

// ErrUnavailable indica que o backend de contagem não pôde ser avaliado
// (rede, status não-2xx, payload inválido, timeout).
//
// Nunca significa "negar": quem recebe deve tratar como ausência de backend.
var ErrUnavailable = errors.New("ratelimit: backend unavailable")

// ErrInvalidRouteClass é retornado quando o nome da classe de rota
// quebraria o formato das chaves (vazio ou contendo ':').
var ErrInvalidRouteClass = errors.New("ratelimit: invalid route class")

// Decision é o resultado de uma checagem. Nunca é persistida.
type Decision struct {
	Allowed bool
	Limit   int64
	// Remaining nunca é negativo.
	Remaining int64
	// ResetAt é o instante em que a janela corrente termina.
	ResetAt time.Time
	// RetryAfter é a recomendação para o header Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// CounterStore é o contrato do armazenamento remoto de contadores atômicos.
//
// Toda falha deve ser retornada embrulhando ErrUnavailable. Implementações não
// podem manter cache local do valor do contador.
type CounterStore interface {
	Incr(ctx context.Context, key Key) (int64, error)
	Expire(ctx context.Context, key Key, ttl time.Duration) error
}

// WindowTable é a tabela local de janelas fixas (reset no primeiro hit).
type WindowTable interface {
	Hit(key Key, limit int64, window time.Duration) Decision
}
