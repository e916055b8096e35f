package api

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp-forge/rdocs/internal/server"
	"github.com/hashicorp-forge/rdocs/internal/version"
)

const (
	serviceName = "Redis Document Management API"

	healthProbeTimeout = 2 * time.Second
)

// HealthResponse is returned by the health endpoint while the backing store
// answers pings.
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Redis     string            `json:"redis"`
	Search    string            `json:"search"`
	Endpoints map[string]string `json:"endpoints"`
}

// UnhealthyResponse is returned with 503 when the backing store is
// unreachable.
type UnhealthyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Redis  string `json:"redis"`
}

var endpoints = map[string]string{
	"create_document":   "POST /docs",
	"get_document":      "GET /docs/<id>",
	"update_document":   "PUT /docs/<id>",
	"search_documents":  "GET /docs/search?q=...",
	"get_audit_history": "GET /docs/<id>/audit",
	"live_updates":      "GET /docs/<id>/live",
}

// HealthHandler reports liveness of the backing store.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		if err := srv.Redis.Ping(ctx).Err(); err != nil {
			srv.Logger.Warn("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, UnhealthyResponse{
				Status: "unhealthy",
				Error:  err.Error(),
				Redis:  "disconnected",
			})
			return
		}

		searchStatus := "unavailable"
		if srv.Search != nil && srv.Search.Available() {
			searchStatus = "available"
		}

		respondJSON(w, http.StatusOK, HealthResponse{
			Status:    "healthy",
			Service:   serviceName,
			Version:   version.Version,
			Redis:     "connected",
			Search:    searchStatus,
			Endpoints: endpoints,
		})
	})
}
