package ratelimit

import (
	"bufio"
	"net"
	"net/http"
)

// SecurityHeaders são aplicados em toda resposta que passa pelo gatekeeper,
// sobrescrevendo o que o handler downstream tiver definido.
var SecurityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
	"X-Frame-Options":        "DENY",
	"Permissions-Policy":     "camera=(), microphone=(), geolocation=()",
}

func applySecurityHeaders(h http.Header) {
	defer func() { _ = recover() }()
	for k, v := range SecurityHeaders {
		h.Set(k, v)
	}
}

// headerWriter injeta os headers de segurança imediatamente antes do status ir
// para o cliente.
type headerWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func newHeaderWriter(w http.ResponseWriter) *headerWriter {
	return &headerWriter{ResponseWriter: w}
}

func (w *headerWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		applySecurityHeaders(w.ResponseWriter.Header())
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *headerWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// finish garante os headers quando o downstream não escreveu nada.
func (w *headerWriter) finish() {
	if !w.wroteHeader {
		applySecurityHeaders(w.ResponseWriter.Header())
	}
}

func (w *headerWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *headerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (w *headerWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
