package ratelimit

import (
	"net/http"
	"strings"

	"admission-gateway/middleware/ratelimit/application"
)

// IdentityFunc deriva a identidade do cliente usada nas chaves de rate limit.
type IdentityFunc func(r *http.Request) string

// ClientIdentity usa o primeiro IP do X-Forwarded-For (cliente original), sem
// espaços. Sem header ou com entrada vazia, todos caem no bucket "unknown".
func ClientIdentity(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return application.UnknownIdentity
	}
	first, _, _ := strings.Cut(xff, ",")
	if ip := strings.TrimSpace(first); ip != "" {
		return ip
	}
	return application.UnknownIdentity
}

// safeIdentity chama fn e cai para "unknown" se ela entrar em pânico.
func safeIdentity(fn IdentityFunc, r *http.Request) (id string) {
	defer func() {
		if recover() != nil {
			id = application.UnknownIdentity
		}
	}()
	id = strings.TrimSpace(fn(r))
	if id == "" {
		id = application.UnknownIdentity
	}
	return id
}
