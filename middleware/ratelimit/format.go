package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// errorBody é o único formato de erro visível ao cliente.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }
