package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"

	"github.com/hashicorp-forge/rdocs/internal/api"
	"github.com/hashicorp-forge/rdocs/internal/cmd/base"
	"github.com/hashicorp-forge/rdocs/internal/config"
	"github.com/hashicorp-forge/rdocs/internal/server"
	"github.com/hashicorp-forge/rdocs/internal/services"
	"github.com/hashicorp-forge/rdocs/pkg/audit"
	"github.com/hashicorp-forge/rdocs/pkg/docstore"
	"github.com/hashicorp-forge/rdocs/pkg/metrics"
	"github.com/hashicorp-forge/rdocs/pkg/notifications"
	"github.com/hashicorp-forge/rdocs/pkg/notifications/backends"
	"github.com/hashicorp-forge/rdocs/pkg/redisconn"
	"github.com/hashicorp-forge/rdocs/pkg/search"
	"github.com/hashicorp-forge/rdocs/pkg/search/adapters/bleve"
	"github.com/hashicorp-forge/rdocs/pkg/search/adapters/redisearch"
)

// connectTimeout bounds connection negotiation at startup.
const connectTimeout = 30 * time.Second

type Command struct {
	*base.Command

	flagConfig  string
	flagEnvFile string
	flagAddr    string
}

func (c *Command) Synopsis() string {
	return "Run the document API server"
}

func (c *Command) Help() string {
	return `Usage: rdocs server [options]

  Connect to Redis, provision the search index and serve the document API.
  Configuration is read from an optional HCL file; environment variables
  override file values.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("server", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", os.Getenv("RDOCS_CONFIG"),
		"[RDOCS_CONFIG] Path to an HCL config file",
	)
	f.StringVar(
		&c.flagEnvFile, "env-file", ".env",
		"Path to a .env file loaded before the config, if it exists",
	)
	f.StringVar(
		&c.flagAddr, "addr", "",
		"[RDOCS_ADDR] Address to listen on, overrides the config",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig, c.flagEnvFile)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if c.flagAddr != "" {
		cfg.Server.Addr = c.flagAddr
	}
	c.ConfigureLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the backing store. Failing every attempt is fatal.
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	client, err := redisconn.Negotiate(cctx, cfg.RedisConn(), c.Log)
	cancel()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to redis: %v", err))
		return 1
	}
	defer client.Close()

	srv, closer, err := c.build(ctx, cfg, client)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer func() {
		if err := closer.Close(); err != nil {
			c.Log.Warn("error closing services", "error", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Log.Info("listening", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			c.UI.Error(fmt.Sprintf("error starting listener: %v", err))
			return 1
		}
	case <-ctx.Done():
	}

	c.Log.Info("shutting down")
	sctx, scancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer scancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		c.Log.Error("error shutting down server", "error", err)
		return 1
	}
	return 0
}

// build wires the services around a connected client. The returned closer
// releases search indexes and notification backends.
func (c *Command) build(
	ctx context.Context, cfg *config.Config, client *redis.Client,
) (server.Server, io.Closer, error) {
	m := metrics.New()
	store := docstore.New(client, c.Log)
	recorder := audit.New(client, c.Log)

	registry, err := backends.NewRegistry(cfg.Notifications, client, c.Log)
	if err != nil {
		return server.Server{}, nil, fmt.Errorf("error configuring notification backends: %w", err)
	}
	notifier := notifications.NewNotifierFromRegistry(registry, c.Log)
	c.Log.Info("notification backends", "backends", registry.GetBackendNames())

	primary, fallback := searchIndexes(cfg, client)
	mgr := search.NewManager(search.ManagerConfig{
		Primary:  primary,
		Fallback: fallback,
		Resolver: store,
		Limit:    cfg.Search.Limit,
		Logger:   c.Log,
		Metrics:  m,
	})
	if err := mgr.Provision(ctx); err != nil {
		c.Log.Warn("continuing without search functionality", "error", err)
	}

	docs := services.NewDocuments(services.DocumentsConfig{
		Store:         store,
		Audit:         recorder,
		Notifier:      notifier,
		Search:        mgr,
		Logger:        c.Log,
		Metrics:       m,
		Timeout:       cfg.OperationTimeout(),
		RecordCreates: cfg.Documents.RecordCreates,
	})
	if n, err := docs.Reindex(ctx); err != nil {
		c.Log.Warn("error reindexing documents", "indexed", n, "error", err)
	}

	srv := server.Server{
		Config:     cfg,
		Documents:  docs,
		Search:     mgr,
		Subscriber: notifications.NewSubscriber(notifications.NewRedisSource(client), c.Log),
		Redis:      client,
		Metrics:    m,
		Logger:     c.Log,
	}

	closer := closerFunc(func() error {
		var result *multierror.Error
		if err := registry.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		for _, idx := range []search.Index{primary, fallback} {
			if cl, ok := idx.(io.Closer); ok {
				if err := cl.Close(); err != nil {
					result = multierror.Append(result, err)
				}
			}
		}
		return result.ErrorOrNil()
	})
	return srv, closer, nil
}

// searchIndexes returns the primary and fallback index for the configured
// provider.
func searchIndexes(cfg *config.Config, client *redis.Client) (search.Index, search.Index) {
	switch cfg.Search.Provider {
	case config.SearchProviderBleve:
		return bleve.NewDiskIndex(cfg.Search.BlevePath), bleve.NewMemIndex("docs-mem")
	default:
		return redisearch.NewPrimary(client), redisearch.NewFallback(client)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
