// Package notifications delivers document changes to subscribers. The
// Notifier fans each change out to the configured backends; the Subscriber
// consumes a document's Redis update channel.
package notifications

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/rdocs/pkg/models"
	"github.com/hashicorp-forge/rdocs/pkg/notifications/backends"
)

// Notifier publishes changes to every registered backend.
type Notifier struct {
	backends []backends.Backend
	logger   hclog.Logger
}

// NewNotifier creates a Notifier over the given backends.
func NewNotifier(logger hclog.Logger, bs ...backends.Backend) *Notifier {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Notifier{
		backends: bs,
		logger:   logger.Named("notifier"),
	}
}

// NewNotifierFromRegistry creates a Notifier over the backends of r.
func NewNotifierFromRegistry(r *backends.Registry, logger hclog.Logger) *Notifier {
	return NewNotifier(logger, r.GetAll()...)
}

// Backends returns the backend names in delivery order.
func (n *Notifier) Backends() []string {
	names := make([]string, len(n.backends))
	for i, b := range n.backends {
		names[i] = b.Name()
	}
	return names
}

// Publish hands change to every backend in order. A failing backend does not
// stop the others; failures are returned together as a
// *backends.MultiBackendError. Nothing is retried. Transient failures are
// logged as warnings and permanent ones as errors.
func (n *Notifier) Publish(ctx context.Context, change models.Change) error {
	var failed []*backends.BackendError

	for _, b := range n.backends {
		err := b.Handle(ctx, &change)
		if err == nil {
			continue
		}

		var be *backends.BackendError
		if !errors.As(err, &be) {
			be = backends.NewBackendError(b.Name(), "handle", false, err)
		}
		level := hclog.Error
		if be.IsRetryable() {
			level = hclog.Warn
		}
		n.logger.Log(level, "notification backend failed",
			"backend", b.Name(),
			"doc_id", change.DocumentID,
			"change_id", change.ID.String(),
			"retryable", be.IsRetryable(),
			"error", err,
		)
		failed = append(failed, be)
	}

	if len(failed) > 0 {
		return &backends.MultiBackendError{Errors: failed}
	}
	return nil
}
