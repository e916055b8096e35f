package server

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/hashicorp-forge/rdocs/internal/config"
	"github.com/hashicorp-forge/rdocs/internal/services"
	"github.com/hashicorp-forge/rdocs/pkg/metrics"
	"github.com/hashicorp-forge/rdocs/pkg/notifications"
)

// Pinger probes backend liveness.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// SearchStatus reports whether a search index was provisioned.
type SearchStatus interface {
	Available() bool
}

// Server contains the server configuration and the services shared by all
// request handlers. It is built once at startup.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// Documents applies document mutations and reads.
	Documents *services.Documents

	// Search reports search availability for the health endpoint.
	Search SearchStatus

	// Subscriber streams live document updates. Nil disables the live
	// endpoint.
	Subscriber *notifications.Subscriber

	// Redis is probed by the health endpoint.
	Redis Pinger

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Logger is the logger for the server.
	Logger hclog.Logger
}
