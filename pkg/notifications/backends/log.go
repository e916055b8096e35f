package backends

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// LogBackend logs every change for compliance and debugging.
type LogBackend struct {
	logger hclog.Logger
}

// NewLogBackend creates a new log backend
func NewLogBackend(logger hclog.Logger) *LogBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LogBackend{
		logger: logger.Named("changes"),
	}
}

// Name returns the backend identifier
func (b *LogBackend) Name() string {
	return "log"
}

// Handle logs the change
func (b *LogBackend) Handle(ctx context.Context, change *models.Change) error {
	fields := make([]string, 0, len(change.Body))
	for k := range change.Body {
		fields = append(fields, k)
	}

	b.logger.Info("document changed",
		"change_id", change.ID.String(),
		"type", string(change.Type),
		"doc_id", change.DocumentID,
		"fields", fields,
		"timestamp", change.Timestamp.Format(time.RFC3339),
	)
	return nil
}
