package ratelimit

import (
	"strings"
	"time"
)

// RouteClass agrupa rotas sensíveis que compartilham o mesmo contador por cliente.
//
// Uma request pertence à classe se o path bate exatamente com um item de Paths
// ou começa com um item de Prefixes.
type RouteClass struct {
	Name     string
	Limit    int64
	Window   time.Duration
	Paths    []string
	Prefixes []string
}

func (c RouteClass) Matches(path string) bool {
	for _, p := range c.Paths {
		if path == p {
			return true
		}
	}
	for _, p := range c.Prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// DefaultRouteClasses é a família de registro/login: 20 requests por minuto.
func DefaultRouteClasses() []RouteClass {
	return []RouteClass{{
		Name:     "auth",
		Limit:    20,
		Window:   time.Minute,
		Paths:    []string{"/api/auth/register"},
		Prefixes: []string{"/api/auth/signin", "/api/auth/callback"},
	}}
}

// matchRoute retorna a primeira classe que casa com path.
func matchRoute(classes []RouteClass, path string) (RouteClass, bool) {
	for _, c := range classes {
		if c.Matches(path) {
			return c, true
		}
	}
	return RouteClass{}, false
}
