package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/hashicorp-forge/rdocs/internal/server"
)

// statusRecorder captures the response code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	if s.code == 0 {
		s.code = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// withRequestLogging logs every request and records it in the HTTP metrics.
// Routes are labelled by the pattern that matched them.
func withRequestLogging(srv server.Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		code := rec.code
		if code == 0 {
			code = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)

		srv.Metrics.HTTPRequest(route, code, elapsed)
		srv.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", code,
			"duration", elapsed,
		)
	})
}

// withCORS allows the configured origins. The default configuration allows
// any origin.
func withCORS(srv server.Server, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: originPatterns(srv),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
	}).Handler(next)
}
