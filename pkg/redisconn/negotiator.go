// Package redisconn establishes the process-wide connection to the backing
// Redis deployment. Managed Redis offerings differ in whether they terminate
// TLS and how strictly, so the negotiator walks an ordered list of transport
// settings and keeps the first one that answers PING.
package redisconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

// ErrConnectionUnavailable is matched by the error Negotiate returns when no
// transport attempt succeeded.
var ErrConnectionUnavailable = errors.New("redis connection unavailable")

// Config holds the connection settings for the backing store.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	// DialTimeout bounds establishing each connection (default: 5 seconds).
	DialTimeout time.Duration

	// ReadTimeout and WriteTimeout bound single socket operations
	// (default: 3 seconds each).
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Attempt is one transport configuration the negotiator tries.
type Attempt struct {
	Name string
	TLS  func(host string) *tls.Config
}

// Attempts returns the transport configurations in the order they are tried:
// plaintext first, then TLS without certificate verification, then TLS with
// every verification and protocol restriction relaxed.
func Attempts() []Attempt {
	return []Attempt{
		{Name: "plain"},
		{
			Name: "tls-insecure",
			TLS: func(host string) *tls.Config {
				return &tls.Config{
					ServerName:         host,
					InsecureSkipVerify: true, //nolint:gosec
				}
			},
		},
		{
			Name: "tls-permissive",
			TLS: func(string) *tls.Config {
				return &tls.Config{
					InsecureSkipVerify: true, //nolint:gosec
					MinVersion:         tls.VersionTLS10,
				}
			},
		},
	}
}

// Client is the part of a go-redis client the negotiator needs to verify and
// discard candidate connections.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// ConnectionUnavailableError reports that every transport attempt failed.
type ConnectionUnavailableError struct {
	Host string
	Port int

	// Attempts holds one error per failed attempt, in order.
	Attempts *multierror.Error

	// Err is the cause of the last attempt.
	Err error
}

func (e *ConnectionUnavailableError) Error() string {
	return fmt.Sprintf("failed to connect to redis at %s:%d after %d attempts: %v",
		e.Host, e.Port, len(e.Attempts.WrappedErrors()), e.Err)
}

func (e *ConnectionUnavailableError) Unwrap() error {
	return e.Err
}

func (e *ConnectionUnavailableError) Is(target error) bool {
	return target == ErrConnectionUnavailable
}

// Negotiator connects to Redis by trying each Attempt in turn.
type Negotiator struct {
	// NewClient builds a client for a set of options. Defaults to
	// redis.NewClient.
	NewClient func(opts *redis.Options) Client

	// Attempts overrides the default attempt list.
	Attempts []Attempt

	Logger hclog.Logger
}

// Negotiate connects using the default attempt list and returns the first
// client that answered PING.
func Negotiate(ctx context.Context, cfg Config, log hclog.Logger) (*redis.Client, error) {
	n := &Negotiator{Logger: log}
	c, err := n.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c.(*redis.Client), nil
}

// Connect runs the attempts in order. It is meant to run once at startup;
// there is no retry loop.
func (n *Negotiator) Connect(ctx context.Context, cfg Config) (Client, error) {
	log := n.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	newClient := n.NewClient
	if newClient == nil {
		newClient = func(opts *redis.Options) Client { return redis.NewClient(opts) }
	}
	attempts := n.Attempts
	if attempts == nil {
		attempts = Attempts()
	}

	var result *multierror.Error
	var lastErr error
	for i, a := range attempts {
		opts := options(cfg)
		if a.TLS != nil {
			opts.TLSConfig = a.TLS(cfg.Host)
		}

		log.Debug("trying redis connection", "attempt", i+1, "mode", a.Name, "addr", opts.Addr)
		c := newClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			lastErr = err
			result = multierror.Append(result, fmt.Errorf("attempt %d (%s): %w", i+1, a.Name, err))
			log.Warn("redis connection attempt failed", "attempt", i+1, "mode", a.Name, "error", err)
			continue
		}

		log.Info("connected to redis", "addr", opts.Addr, "mode", a.Name)
		return c, nil
	}

	if result == nil {
		result = &multierror.Error{}
	}
	return nil, &ConnectionUnavailableError{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Attempts: result,
		Err:      lastErr,
	}
}

func options(cfg Config) *redis.Options {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 3 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 3 * time.Second
	}

	return &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,

		// RESP2 keeps FT.SEARCH replies as flat arrays.
		Protocol: 2,

		DialTimeout:           dialTimeout,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		ContextTimeoutEnabled: true,
	}
}
