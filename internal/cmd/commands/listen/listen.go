package listen

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hashicorp-forge/rdocs/internal/cmd/base"
	"github.com/hashicorp-forge/rdocs/pkg/notifications"
	"github.com/hashicorp-forge/rdocs/pkg/redisconn"
)

const connectTimeout = 30 * time.Second

type Command struct {
	*base.Command

	flagConfig  string
	flagEnvFile string
	flagID      int64
	flagRaw     bool
}

func (c *Command) Synopsis() string {
	return "Print live updates published for a document"
}

func (c *Command) Help() string {
	return `Usage: rdocs listen -id=<document ID> [options]

  Subscribe to the update channel of a document and print every update
  until interrupted. The subscription is re-established with exponential
  backoff if it drops.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("listen", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", os.Getenv("RDOCS_CONFIG"),
		"[RDOCS_CONFIG] Path to an HCL config file",
	)
	f.StringVar(
		&c.flagEnvFile, "env-file", ".env",
		"Path to a .env file loaded before the config, if it exists",
	)
	f.Int64Var(
		&c.flagID, "id", 0,
		"ID of the document to follow",
	)
	f.BoolVar(
		&c.flagRaw, "raw", false,
		"Print payloads only",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagID <= 0 {
		c.UI.Error("a positive document ID is required (-id)")
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig, c.flagEnvFile)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.ConfigureLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	client, err := redisconn.Negotiate(cctx, cfg.RedisConn(), c.Log)
	cancel()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to redis: %v", err))
		return 1
	}
	defer client.Close()

	sub := notifications.NewSubscriber(notifications.NewRedisSource(client), c.Log)
	c.UI.Info(fmt.Sprintf("Listening for updates to document %d", c.flagID))

	if err := c.follow(ctx, sub, newBackOff()); err != nil {
		c.UI.Error(fmt.Sprintf("error listening for updates: %v", err))
		return 1
	}
	return 0
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// follow prints updates until ctx is cancelled, resubscribing whenever the
// subscription fails. The backoff restarts after every delivered update.
func (c *Command) follow(ctx context.Context, sub *notifications.Subscriber, b backoff.BackOff) error {
	bctx := backoff.WithContext(b, ctx)

	op := func() error {
		return sub.Listen(ctx, c.flagID, func(u notifications.Update) error {
			bctx.Reset()
			c.UI.Output(c.format(u))
			return nil
		})
	}
	notify := func(err error, next time.Duration) {
		c.Log.Warn("subscription lost, resubscribing",
			"doc_id", c.flagID,
			"error", err,
			"backoff", next,
		)
	}

	err := backoff.RetryNotify(op, bctx, notify)
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Command) format(u notifications.Update) string {
	if c.flagRaw {
		return u.Payload
	}
	return fmt.Sprintf("[%s] document %d updated: %s",
		time.Now().Format(time.RFC3339), u.DocumentID, u.Payload)
}
