package domain

import "context"

// SlotPool limita quantas requests admitidas podem estar em voo ao mesmo tempo.
//
// Acquire bloqueia até obter uma vaga ou até o ctx encerrar. A função de release
// retornada deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InFlight() int
}
