// Package application contém os casos de uso de admissão: o Limiter (com as
// estratégias remota e local de janela fixa) e o SlotService de concorrência.
//
// Depende apenas de domain; não conhece net/http.
// Ex.: Limiter.Check(ctx, "auth", ip, 20, time.Minute) retorna uma domain.Decision.
package application
