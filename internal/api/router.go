// Package api serves the rdocs HTTP interface.
package api

import (
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/rdocs/internal/server"
)

// NewRouter returns the handler for every rdocs route with logging, metrics
// and CORS applied.
func NewRouter(srv server.Server) http.Handler {
	if srv.Logger == nil {
		srv.Logger = hclog.NewNullLogger()
	}

	mux := http.NewServeMux()

	health := HealthHandler(srv)
	mux.Handle("GET /{$}", health)
	mux.Handle("GET /health", health)
	mux.Handle("GET /metrics", srv.Metrics.Handler())

	mux.Handle("POST /docs", DocumentsPostHandler(srv))
	mux.Handle("GET /docs/search", SearchHandler(srv))
	mux.Handle("GET /docs/{id}", DocumentGetHandler(srv))
	mux.Handle("PUT /docs/{id}", DocumentPutHandler(srv))
	mux.Handle("GET /docs/{id}/audit", DocumentAuditHandler(srv))
	mux.Handle("GET /docs/{id}/live", LiveHandler(srv))

	return withCORS(srv, withRequestLogging(srv, mux))
}
