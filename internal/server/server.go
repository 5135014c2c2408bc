// Package server monta o handler HTTP do gateway: gatekeeper na borda, router
// chi com endpoints próprios e, se configurado, proxy reverso para o upstream.
package server

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Deps reúne o que o handler precisa; campos nil desligam a parte correspondente.
type Deps struct {
	Gate        func(http.Handler) http.Handler
	Concurrency func(http.Handler) http.Handler
	Upstream    *url.URL

	Stats domain.StatsReader
	// Mode é o modo do limiter ("remote", "local" ou vazio).
	Mode     string
	Slots    domain.SlotPool
	TableLen func() int
	// AdminEnabled registra /admin/ratelimit/stats. A rota não tem
	// autenticação; ligue só quando o listener não for público.
	AdminEnabled bool

	Logger *zap.Logger
}

type Server struct {
	router  chi.Router
	handler http.Handler
	deps    Deps
	log     *zap.Logger
}

func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{router: chi.NewRouter(), deps: deps, log: log.Named("server")}

	s.router.Use(RequestID)
	s.router.Use(AccessLog(s.log))
	s.router.Use(Recovery(s.log))
	if deps.Concurrency != nil {
		s.router.Use(deps.Concurrency)
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.registerRoutes()

	s.handler = s.router
	if deps.Gate != nil {
		s.handler = deps.Gate(s.router)
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health)
	if s.deps.AdminEnabled {
		s.router.Get("/admin/ratelimit/stats", s.stats)
	}

	if s.deps.Upstream != nil {
		s.router.Handle("/*", s.newProxy(s.deps.Upstream))
		return
	}
	s.router.HandleFunc("/api/*", apiEcho)
}

func (s *Server) newProxy(target *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.log.Warn("proxy error",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "Bad gateway")
	}
	return proxy
}
