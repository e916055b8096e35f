package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/rdocs/pkg/docstore"
	"github.com/hashicorp-forge/rdocs/pkg/metrics"
	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// DefaultLimit caps the number of hits a query returns.
const DefaultLimit = 10

// ManagerConfig holds the dependencies of a Manager.
type ManagerConfig struct {
	Primary  Index
	Fallback Index
	Resolver Resolver
	Limit    int
	Logger   hclog.Logger
	Metrics  *metrics.Metrics
}

// Manager provisions the primary and fallback indexes once and serves
// queries against them.
type Manager struct {
	primary  Index
	fallback Index
	resolver Resolver
	limit    int
	logger   hclog.Logger
	metrics  *metrics.Metrics

	mu          sync.RWMutex
	provisioned bool
	available   bool

	// active is the index Provision opened; nil while search is
	// unavailable.
	active Index
}

// NewManager creates a Manager. Search is unavailable until Provision
// succeeds.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		resolver: cfg.Resolver,
		limit:    limit,
		logger:   logger.Named("search"),
		metrics:  cfg.Metrics,
	}
}

// Provision creates the primary index, falling back to the secondary one if
// that fails for any reason other than the index already existing. If both
// fail, search stays unavailable for the life of the Manager. Only the first
// call has any effect.
func (m *Manager) Provision(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provisioned {
		if !m.available {
			return ErrUnavailable
		}
		return nil
	}
	m.provisioned = true

	primaryErr := create(ctx, m.primary)
	if primaryErr == nil {
		m.available = true
		m.active = m.primary
		m.logger.Info("search index ready", "index", m.primary.Name())
		return nil
	}
	m.logger.Warn("primary search index unavailable, trying fallback",
		"index", m.primary.Name(), "error", primaryErr)

	if m.fallback == nil {
		m.logger.Error("search disabled", "error", primaryErr)
		return &Error{Op: "Provision", Err: ErrUnavailable, Msg: primaryErr.Error()}
	}

	fallbackErr := create(ctx, m.fallback)
	if fallbackErr == nil {
		m.available = true
		m.active = m.fallback
		m.logger.Info("search index ready", "index", m.fallback.Name())
		return nil
	}

	m.logger.Error("search disabled",
		"primary_error", primaryErr, "fallback_error", fallbackErr)
	return &Error{Op: "Provision", Err: ErrUnavailable, Msg: fallbackErr.Error()}
}

// create provisions idx, treating an existing index as success.
func create(ctx context.Context, idx Index) error {
	if idx == nil {
		return errors.New("no index configured")
	}
	err := idx.Create(ctx)
	if err == nil || errors.Is(err, ErrIndexExists) {
		return nil
	}
	return &Error{Op: "Create", Err: err, Msg: idx.Name()}
}

// Available reports whether provisioning succeeded. It performs no I/O.
func (m *Manager) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// activeIndex returns the provisioned index, or nil.
func (m *Manager) activeIndex() Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// standby returns the configured index that Provision did not open.
func (m *Manager) standby(active Index) Index {
	if active == m.primary {
		return m.fallback
	}
	return m.primary
}

// Search returns the current bodies of documents whose title or body
// contains term. An empty term returns no documents without touching the
// backend, even when search is unavailable. Hits whose document no longer
// exists are skipped.
func (m *Manager) Search(ctx context.Context, term string) ([]models.Document, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		m.metrics.SearchQuery(metrics.SearchEmptyTerm)
		return []models.Document{}, nil
	}
	if !m.Available() {
		m.metrics.SearchQuery(metrics.SearchUnavailable)
		return nil, ErrUnavailable
	}

	keys, err := m.query(ctx, Pattern(term))
	if err != nil {
		m.metrics.SearchQuery(metrics.SearchFailed)
		return nil, err
	}

	docs := make([]models.Document, 0, len(keys))
	for _, key := range keys {
		id, err := docstore.ParseKey(key)
		if err != nil {
			m.logger.Warn("skipping unrecognised search hit", "key", key, "error", err)
			continue
		}
		body, err := m.resolver.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, docstore.ErrNotFound) {
				m.logger.Warn("skipping search hit", "doc_id", id, "error", err)
			}
			continue
		}
		docs = append(docs, models.Document{ID: id, Body: body})
	}

	m.metrics.SearchQuery(metrics.SearchOK)
	return docs, nil
}

// query runs pattern on the provisioned index. If that errors, the other
// index is tried only when the backend maintains it; an index fed through
// Index holds nothing unless it was provisioned.
func (m *Manager) query(ctx context.Context, pattern string) ([]string, error) {
	active := m.activeIndex()
	if active == nil {
		return nil, ErrUnavailable
	}
	keys, activeErr := active.Query(ctx, pattern, m.limit)
	if activeErr == nil {
		return keys, nil
	}

	other := m.standby(active)
	if _, fed := other.(Indexer); other == nil || fed {
		return nil, &Error{Op: "Query", Err: ErrQueryFailed, Msg: activeErr.Error()}
	}

	m.metrics.SearchFallback()
	m.logger.Debug("query failed, trying other index",
		"index", active.Name(), "error", activeErr)

	keys, otherErr := other.Query(ctx, pattern, m.limit)
	if otherErr != nil {
		m.logger.Error("search query failed",
			"index_error", activeErr, "other_index_error", otherErr)
		return nil, &Error{Op: "Query", Err: ErrQueryFailed, Msg: otherErr.Error()}
	}
	return keys, nil
}

// Index feeds a document to the provisioned index when that index needs
// explicit indexing. It is a no-op for indexes the backend maintains on its
// own and while search is unavailable.
func (m *Manager) Index(ctx context.Context, id int64, body models.Body) error {
	indexer, ok := m.activeIndex().(Indexer)
	if !ok {
		return nil
	}
	if err := indexer.IndexDocument(ctx, docstore.Key(id), body); err != nil {
		return &Error{Op: "Index", Err: err, Msg: m.activeIndex().Name()}
	}
	return nil
}

// NeedsIndexing reports whether the provisioned index must be fed documents
// through Index. It is false while search is unavailable.
func (m *Manager) NeedsIndexing() bool {
	_, ok := m.activeIndex().(Indexer)
	return ok
}
