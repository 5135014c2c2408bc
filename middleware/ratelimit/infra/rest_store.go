package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// RESTCounterStore fala com um key-value remoto via HTTP (estilo Upstash REST):
//
//	GET {base}/{comando}/{arg1}/{arg2}... com Authorization: Bearer {token}
//
// Respostas de sucesso são JSON com campo "result". Qualquer falha vira
// domain.ErrUnavailable. Não guarda estado entre chamadas.
type RESTCounterStore struct {
	baseURL string
	token   string
	client  *http.Client
	timeout time.Duration
}

type RESTOption func(*RESTCounterStore)

// WithHTTPClient troca o client HTTP (útil em testes com httptest).
func WithHTTPClient(c *http.Client) RESTOption {
	return func(s *RESTCounterStore) {
		if c != nil {
			s.client = c
		}
	}
}

// WithCallTimeout limita cada chamada individual (incr/expire).
func WithCallTimeout(d time.Duration) RESTOption {
	return func(s *RESTCounterStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewRESTCounterStore(baseURL, token string, opts ...RESTOption) *RESTCounterStore {
	s := &RESTCounterStore{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{},
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type restReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Incr implementa domain.CounterStore.
func (s *RESTCounterStore) Incr(ctx context.Context, key domain.Key) (int64, error) {
	raw, err := s.call(ctx, "incr", string(key))
	if err != nil {
		return 0, err
	}
	n, err := parseInteger(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: incr: %v", domain.ErrUnavailable, err)
	}
	return n, nil
}

// Expire implementa domain.CounterStore. O ttl é arredondado para cima em segundos.
func (s *RESTCounterStore) Expire(ctx context.Context, key domain.Key, ttl time.Duration) error {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	raw, err := s.call(ctx, "expire", string(key), strconv.FormatInt(secs, 10))
	if err != nil {
		return err
	}
	if _, err := parseInteger(raw); err != nil {
		return fmt.Errorf("%w: expire: %v", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *RESTCounterStore) call(ctx context.Context, command string, args ...string) (json.RawMessage, error) {
	if s.baseURL == "" || s.token == "" {
		return nil, fmt.Errorf("%w: store not configured", domain.ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.commandURL(command, args...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, command, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, command, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", domain.ErrUnavailable, command, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", domain.ErrUnavailable, command, resp.StatusCode)
	}

	var reply restReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("%w: %s: malformed reply: %v", domain.ErrUnavailable, command, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrUnavailable, command, reply.Error)
	}
	if len(reply.Result) == 0 || string(reply.Result) == "null" {
		return nil, fmt.Errorf("%w: %s: missing result", domain.ErrUnavailable, command)
	}
	return reply.Result, nil
}

func (s *RESTCounterStore) commandURL(command string, args ...string) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteByte('/')
	b.WriteString(escapeArg(command))
	for _, a := range args {
		b.WriteByte('/')
		b.WriteString(escapeArg(a))
	}
	return b.String()
}

// escapeArg codifica um argumento como um único segmento de path, inclusive ':' e '/'.
func escapeArg(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// parseInteger aceita número JSON ou string numérica ("5"), como alguns proxies devolvem.
func parseInteger(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err2 := json.Unmarshal(raw, &s); err2 != nil {
			return 0, fmt.Errorf("result is not an integer: %s", raw)
		}
		n = json.Number(s)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("result is not an integer: %s", raw)
	}
	return v, nil
}
