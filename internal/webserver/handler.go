package webserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
)

// Lambda is the shape every operation is adapted to. Bound collaborators
// (miner, server, the plot dir remove flag) are captured by the closure at
// route registration time.
type Lambda func(w http.ResponseWriter, r *http.Request)

// LambdaHandler adapts an operation closure to http.Handler, so routes never
// need per-operation handler types. A panic inside the operation is mapped to
// a 500 unless the operation already wrote a response.
type LambdaHandler struct {
	lambda Lambda
}

func NewLambdaHandler(lambda Lambda) *LambdaHandler {
	return &LambdaHandler{lambda: lambda}
}

func (h *LambdaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tracked := &trackingResponseWriter{ResponseWriter: w}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Handler panic on %s %s: %v", r.Method, r.URL.Path, rec)
			if !tracked.wrote {
				http.Error(tracked, "internal server error", http.StatusInternalServerError)
			}
		}
	}()

	h.lambda(tracked, r)
}

// trackingResponseWriter remembers whether a response has been started.
type trackingResponseWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingResponseWriter) WriteHeader(statusCode int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *trackingResponseWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// Hijack forwards to the underlying writer so the websocket upgrade keeps
// working behind the adapter.
func (w *trackingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.wrote = true
	return hijacker.Hijack()
}

func (w *trackingResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func badRequest(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"result": "error",
		"reason": reason,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not found", http.StatusNotFound)
}

func redirect(w http.ResponseWriter, r *http.Request, uri string) {
	http.Redirect(w, r, uri, http.StatusFound)
}
