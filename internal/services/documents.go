// Package services holds the document mutation pipeline: the authoritative
// store write followed by the best-effort audit, notification and indexing
// side effects.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/rdocs/pkg/docstore"
	"github.com/hashicorp-forge/rdocs/pkg/metrics"
	"github.com/hashicorp-forge/rdocs/pkg/models"
	"github.com/hashicorp-forge/rdocs/pkg/notifications/backends"
)

// DefaultTimeout bounds every backend call made on behalf of a request.
const DefaultTimeout = 5 * time.Second

// ErrInvalidRequest is returned for a missing or empty document body.
var ErrInvalidRequest = errors.New("invalid request")

// Store is the authoritative document store.
type Store interface {
	Create(ctx context.Context, body models.Body) (int64, error)
	Get(ctx context.Context, id int64) (models.Body, error)
	Replace(ctx context.Context, id int64, body models.Body) error
	LastID(ctx context.Context) (int64, error)
}

// AuditLog records and replays document history.
type AuditLog interface {
	Append(ctx context.Context, id int64, mutation models.Body) (string, error)
	Events(ctx context.Context, id int64) ([]models.AuditEvent, error)
}

// Notifier broadcasts applied changes.
type Notifier interface {
	Publish(ctx context.Context, change models.Change) error
}

// Searcher queries and feeds the search index.
type Searcher interface {
	Search(ctx context.Context, term string) ([]models.Document, error)
	Index(ctx context.Context, id int64, body models.Body) error
	NeedsIndexing() bool
}

// DocumentsConfig holds the dependencies of a Documents service.
type DocumentsConfig struct {
	Store    Store
	Audit    AuditLog
	Notifier Notifier
	Search   Searcher
	Logger   hclog.Logger
	Metrics  *metrics.Metrics

	// Timeout bounds each backend call. Zero means DefaultTimeout.
	Timeout time.Duration

	// RecordCreates makes Create publish a change and append an audit
	// event, like Update does. Off by default: a document's history starts
	// at its first update.
	RecordCreates bool
}

// Documents applies document mutations.
type Documents struct {
	store         Store
	audit         AuditLog
	notifier      Notifier
	search        Searcher
	logger        hclog.Logger
	metrics       *metrics.Metrics
	timeout       time.Duration
	recordCreates bool
}

// NewDocuments creates the service. It is built once at startup and shared
// by all requests.
func NewDocuments(cfg DocumentsConfig) *Documents {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Documents{
		store:         cfg.Store,
		audit:         cfg.Audit,
		notifier:      cfg.Notifier,
		search:        cfg.Search,
		logger:        logger.Named("documents"),
		metrics:       cfg.Metrics,
		timeout:       timeout,
		recordCreates: cfg.RecordCreates,
	}
}

// Create stores body under a new ID and returns the ID.
func (d *Documents) Create(ctx context.Context, body models.Body) (int64, error) {
	if len(body) == 0 {
		return 0, ErrInvalidRequest
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	id, err := d.store.Create(cctx, body)
	cancel()
	if err != nil {
		return 0, err
	}

	d.metrics.DocumentCreated()
	d.logger.Info("created document", "doc_id", id)

	if d.recordCreates {
		d.dispatch(ctx, models.NewChange(models.ChangeTypeCreated, id, body))
	}
	d.index(ctx, id, body)
	return id, nil
}

// Update replaces the body of document id. Once the store write succeeds the
// change is published and audited; failures of either are logged and never
// returned.
func (d *Documents) Update(ctx context.Context, id int64, body models.Body) error {
	if len(body) == 0 {
		return ErrInvalidRequest
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.store.Replace(cctx, id, body)
	cancel()
	if err != nil {
		return err
	}

	d.metrics.DocumentUpdated()
	d.logger.Info("updated document", "doc_id", id)

	d.dispatch(ctx, models.NewChange(models.ChangeTypeUpdated, id, body))
	d.index(ctx, id, body)
	return nil
}

// dispatch runs the notifier and the audit log concurrently, each under its
// own deadline, and waits for both. The request context's cancellation is
// not inherited: the store write has already happened.
func (d *Documents) dispatch(ctx context.Context, change models.Change) {
	base := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		if err := d.notifier.Publish(cctx, change); err != nil {
			d.metrics.SideEffectFailed(metrics.SideEffectNotify)
			d.logger.Log(publishFailureLevel(err), "error publishing change",
				"doc_id", change.DocumentID,
				"change_id", change.ID.String(),
				"error", err,
			)
		}
	}()

	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		if _, err := d.audit.Append(cctx, change.DocumentID, change.Body); err != nil {
			d.metrics.SideEffectFailed(metrics.SideEffectAudit)
			d.logger.Error("error appending audit event",
				"doc_id", change.DocumentID,
				"change_id", change.ID.String(),
				"error", err,
			)
		}
	}()

	wg.Wait()
}

// publishFailureLevel logs a failed publish as a warning when every failed
// backend reported a transient error, and as an error otherwise.
func publishFailureLevel(err error) hclog.Level {
	var multi *backends.MultiBackendError
	if errors.As(err, &multi) && multi.AllRetryable() {
		return hclog.Warn
	}
	return hclog.Error
}

func (d *Documents) index(ctx context.Context, id int64, body models.Body) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.search.Index(cctx, id, body); err != nil {
		d.metrics.SideEffectFailed(metrics.SideEffectIndex)
		d.logger.Warn("error indexing document", "doc_id", id, "error", err)
	}
}

// Get returns the current body of document id.
func (d *Documents) Get(ctx context.Context, id int64) (models.Body, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.store.Get(cctx, id)
}

// Search returns documents whose title or body contains term.
func (d *Documents) Search(ctx context.Context, term string) ([]models.Document, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.search.Search(cctx, term)
}

// History returns the audit events of document id, oldest first.
func (d *Documents) History(ctx context.Context, id int64) ([]models.AuditEvent, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.audit.Events(cctx, id)
}

// Reindex feeds every stored document to search indexes that are not
// maintained by the backend, such as an in-memory index after a restart.
// It returns the number of documents indexed.
func (d *Documents) Reindex(ctx context.Context) (int, error) {
	if !d.search.NeedsIndexing() {
		return 0, nil
	}

	last, err := d.store.LastID(ctx)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for id := int64(1); id <= last; id++ {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		body, err := d.Get(ctx, id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return indexed, err
		}

		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		err = d.search.Index(cctx, id, body)
		cancel()
		if err != nil {
			return indexed, err
		}
		indexed++
	}

	d.logger.Info("reindexed documents", "count", indexed)
	return indexed, nil
}
