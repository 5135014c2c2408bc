package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// BurstGuard é o token bucket por cliente aplicado ao prefixo de API.
type BurstGuard interface {
	Allow(key domain.Key) bool
}

type Options struct {
	// Limiter nil desliga o portão de rate limit (fail open).
	Limiter *application.Limiter
	Classes []RouteClass

	APIPrefix      string
	AllowedMethods []string

	// RetryAfterSeconds é constante de política, não deriva da janela.
	RetryAfterSeconds   int
	// AddRateLimitHeaders expõe X-RateLimit-Limit/Remaining também nas respostas permitidas.
	AddRateLimitHeaders bool

	Burst        BurstGuard
	Stats        domain.StatsStore
	// StatsTimeout limita cada Record síncrono (padrão 250ms). Para backends
	// remotos prefira envolver o store em infra.AsyncStatsStore.
	StatsTimeout time.Duration

	IdentityFn IdentityFunc
	Logger     *zap.Logger
	Now        func() time.Time
}

// Gatekeeper decide, por request, se ela segue adiante. A ordem dos portões é
// fixa e a primeira rejeição encerra a request:
//
//  1. método fora da allowlist no prefixo de API -> 405
//  2. rajada acima do token bucket (se configurado) -> 429
//  3. classe de rota sensível acima do limite -> 429
//
// Toda resposta, inclusive 405/429, sai com os headers de segurança.
type Gatekeeper struct {
	opts       Options
	allowed    map[string]struct{}
	allowValue string
	retryAfter string
	log        *zap.Logger
}

func New(opts Options) *Gatekeeper {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/"
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if opts.RetryAfterSeconds <= 0 {
		opts.RetryAfterSeconds = 60
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = ClientIdentity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = 250 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	allowed := make(map[string]struct{}, len(opts.AllowedMethods))
	methods := make([]string, 0, len(opts.AllowedMethods))
	for _, m := range opts.AllowedMethods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, dup := allowed[m]; !dup {
			allowed[m] = struct{}{}
			methods = append(methods, m)
		}
	}

	return &Gatekeeper{
		opts:       opts,
		allowed:    allowed,
		allowValue: strings.Join(methods, ", "),
		retryAfter: strconv.Itoa(opts.RetryAfterSeconds),
		log:        log.Named("gatekeeper"),
	}
}

// Middleware é o atalho para New(opts).Wrap.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	return New(opts).Wrap
}

func (g *Gatekeeper) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w := newHeaderWriter(rw)
		defer w.finish()

		if g.admit(w, r) {
			next.ServeHTTP(w, r)
		}
	})
}

// admit roda os portões; false significa que a resposta já foi escrita.
func (g *Gatekeeper) admit(w http.ResponseWriter, r *http.Request) bool {
	path := r.URL.Path
	underAPI := strings.HasPrefix(path, g.opts.APIPrefix)

	if underAPI {
		if _, ok := g.allowed[r.Method]; !ok {
			g.log.Debug("method not allowed",
				zap.String("method", r.Method),
				zap.String("path", path))
			g.record(r, "", "", domain.OutcomeMethodBlocked)
			w.Header().Set("Allow", g.allowValue)
			writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return false
		}
	}

	class, sensitive := matchRoute(g.opts.Classes, path)
	useBurst := underAPI && g.opts.Burst != nil
	if !useBurst && !sensitive {
		return true
	}

	identity := safeIdentity(g.opts.IdentityFn, r)

	if useBurst && !g.opts.Burst.Allow(domain.Key("burst:"+identity)) {
		g.log.Info("burst limit exceeded", zap.String("client", identity), zap.String("path", path))
		g.record(r, identity, "", domain.OutcomeBurstDenied)
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
		return false
	}

	if !sensitive || g.opts.Limiter == nil {
		return true
	}

	dec, err := g.opts.Limiter.Check(r.Context(), class.Name, identity, class.Limit, class.Window)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			g.log.Warn("rate limit backend unavailable, failing open",
				zap.String("class", class.Name),
				zap.Error(err))
		} else {
			g.log.Error("rate limit check failed, failing open",
				zap.String("class", class.Name),
				zap.Error(err))
		}
		g.record(r, identity, class.Name, domain.OutcomeUnavailable)
		return true
	}

	if !dec.Allowed {
		g.log.Info("rate limit exceeded",
			zap.String("class", class.Name),
			zap.String("client", identity),
			zap.Int64("limit", dec.Limit))
		g.record(r, identity, class.Name, domain.OutcomeDenied)
		w.Header().Set("Retry-After", g.retryAfter)
		w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
		writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
		return false
	}

	g.record(r, identity, class.Name, domain.OutcomeAllowed)
	if g.opts.AddRateLimitHeaders {
		w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
		w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	}
	return true
}

// record é best-effort: erro de estatística nunca afeta a request.
func (g *Gatekeeper) record(r *http.Request, identity, class string, outcome domain.Outcome) {
	if g.opts.Stats == nil {
		return
	}
	ev := domain.StatsEvent{
		Key:     domain.Key(identity),
		Class:   class,
		Outcome: outcome,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      g.opts.Now(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), g.opts.StatsTimeout)
	defer cancel()
	if err := g.opts.Stats.Record(ctx, ev); err != nil {
		g.log.Debug("stats record failed", zap.Error(err))
	}
}
