// Package kvtest provides an in-process fake of the REST counter store protocol
// (GET {base}/{command}/{args...} with a bearer token) for tests.
package kvtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Call is one command received by the fake server, with decoded arguments.
type Call struct {
	Command string
	Args    []string
	RawPath string
}

// Server is a fake key-value store speaking the REST protocol.
type Server struct {
	URL   string
	Token string

	mu       sync.Mutex
	counters map[string]int64
	ttls     map[string]time.Duration
	calls    []Call

	status int
	body   string
	delay time.Duration
}

// NewServer starts a fake store closed automatically at test cleanup.
func NewServer(t testing.TB, token string) *Server {
	t.Helper()

	s := &Server{
		Token:    token,
		counters: make(map[string]int64),
		ttls:     make(map[string]time.Duration),
	}
	ts := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(ts.Close)
	s.URL = ts.URL
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
		return
	}

	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	parts := strings.Split(raw, "/")
	args := make([]string, 0, len(parts))
	for _, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		args = append(args, v)
	}
	call := Call{Command: strings.ToLower(args[0]), Args: args[1:], RawPath: raw}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	status, body := s.status, s.body
	s.mu.Unlock()

	if status != 0 {
		if body == "" {
			body = `{"error":"forced failure"}`
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}
	if body != "" {
		_, _ = w.Write([]byte(body))
		return
	}

	switch call.Command {
	case "incr":
		if len(call.Args) != 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "wrong number of arguments"})
			return
		}
		s.mu.Lock()
		s.counters[call.Args[0]]++
		n := s.counters[call.Args[0]]
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"result": n})
	case "expire":
		if len(call.Args) != 2 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "wrong number of arguments"})
			return
		}
		secs, err := strconv.Atoi(call.Args[1])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "value is not an integer"})
			return
		}
		s.mu.Lock()
		_, ok := s.counters[call.Args[0]]
		if ok {
			s.ttls[call.Args[0]] = time.Duration(secs) * time.Second
		}
		s.mu.Unlock()
		result := 0
		if ok {
			result = 1
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown command"})
	}
}

// Calls returns a copy of the commands received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor returns the received commands with the given name.
func (s *Server) CallsFor(command string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Command == command {
			out = append(out, c)
		}
	}
	return out
}

// Counter returns the current value of key.
func (s *Server) Counter(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}

// TTL returns the last expiry set for key.
func (s *Server) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.ttls[key]
	return d, ok
}

// Keys returns every key that has been incremented.
func (s *Server) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.counters))
	for k := range s.counters {
		out = append(out, k)
	}
	return out
}

// Fail makes every following request answer with status.
func (s *Server) Fail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Reply makes every following request answer 200 with body.
func (s *Server) Reply(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

// SetDelay delays every following answer by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
