// servidor-burrao é um backend de dashboard falso para validar o gateway na mão:
// ele não limita nada e devolve headers "errados" que o gateway deve sobrescrever.
//
//	go run ./teste-validacao/servidor-burrao
//	ADMISSION_UPSTREAM_URL=http://localhost:8081 go run ./cmd/gateway serve
package main

import (
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	reply := func(status int, body any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("xff", r.Header.Get("X-Forwarded-For")))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(body)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", reply(http.StatusCreated, map[string]string{"status": "registered"}))
	mux.HandleFunc("/api/auth/signin/", reply(http.StatusOK, map[string]string{"status": "signed-in"}))
	mux.HandleFunc("/api/portfolio", reply(http.StatusOK, map[string]any{"positions": []string{"PETR4", "VALE3"}}))
	mux.HandleFunc("/", reply(http.StatusOK, map[string]string{"page": "dashboard"}))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.Info("servidor rodando", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("erro ao subir o servidor", zap.Error(err))
	}
}
