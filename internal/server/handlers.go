package server

import (
	"net/http"

	"go.uber.org/zap"
)

type healthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	mode := s.deps.Mode
	if mode == "" {
		mode = "disabled"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Mode: mode})
}

type statsResponse struct {
	Mode         string                      `json:"mode"`
	InFlight     int                         `json:"in_flight"`
	LocalEntries int                         `json:"local_entries"`
	Total        map[string]int64            `json:"total"`
	ByClass      map[string]map[string]int64 `json:"by_class"`
	ByKey        map[string]map[string]int64 `json:"by_key,omitempty"`
	Dropped      int64                       `json:"dropped,omitempty"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Mode:    s.deps.Mode,
		Total:   map[string]int64{},
		ByClass: map[string]map[string]int64{},
	}
	if s.deps.Slots != nil {
		resp.InFlight = s.deps.Slots.InFlight()
	}
	if s.deps.TableLen != nil {
		resp.LocalEntries = s.deps.TableLen()
	}

	if s.deps.Stats != nil {
		snap, err := s.deps.Stats.Snapshot(r.Context())
		if err != nil {
			s.log.Warn("stats snapshot failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "Stats unavailable")
			return
		}
		for k, v := range snap.Total {
			resp.Total[string(k)] = v
		}
		for class, counters := range snap.ByClass {
			m := make(map[string]int64, len(counters))
			for k, v := range counters {
				m[string(k)] = v
			}
			resp.ByClass[class] = m
		}
		if len(snap.ByKey) > 0 {
			resp.ByKey = make(map[string]map[string]int64, len(snap.ByKey))
			for key, counters := range snap.ByKey {
				m := make(map[string]int64, len(counters))
				for k, v := range counters {
					m[string(k)] = v
				}
				resp.ByKey[key] = m
			}
		}
		resp.Dropped = snap.Dropped
	}
	writeJSON(w, http.StatusOK, resp)
}

// apiEcho responde as rotas de API quando não há upstream.
func apiEcho(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": GetRequestID(r.Context()),
	})
}
