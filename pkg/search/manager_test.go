package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/rdocs/pkg/docstore"
	"github.com/hashicorp-forge/rdocs/pkg/metrics"
	"github.com/hashicorp-forge/rdocs/pkg/models"
)

type fakeIndex struct {
	name      string
	createErr error
	queryErr  error
	keys      []string

	mu       sync.Mutex
	creates  int
	queries  []string
	indexed  map[string]models.Body
	indexErr error
}

func (f *fakeIndex) Name() string { return f.name }

func (f *fakeIndex) Create(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return f.createErr
}

func (f *fakeIndex) Query(ctx context.Context, pattern string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, fmt.Sprintf("%s/%d", pattern, limit))
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.keys, nil
}

func (f *fakeIndex) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// indexingFake also implements Indexer.
type indexingFake struct {
	*fakeIndex
}

func (f indexingFake) IndexDocument(ctx context.Context, key string, body models.Body) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	if f.indexed == nil {
		f.indexed = map[string]models.Body{}
	}
	f.indexed[key] = body
	return nil
}

type mapResolver map[int64]models.Body

func (r mapResolver) Get(ctx context.Context, id int64) (models.Body, error) {
	if id == 99 {
		return nil, fmt.Errorf("%w: timeout", docstore.ErrReadFailed)
	}
	b, ok := r[id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return b, nil
}

var errBackend = errors.New("backend error")

func TestManager_Provision(t *testing.T) {
	tests := []struct {
		name             string
		primaryErr       error
		fallbackErr      error
		wantErr          bool
		wantAvailable    bool
		wantFallbackCall bool
	}{
		{
			name:          "primary created",
			wantAvailable: true,
		},
		{
			name:          "primary exists",
			primaryErr:    fmt.Errorf("idx:docs: %w", ErrIndexExists),
			wantAvailable: true,
		},
		{
			name:             "fallback created",
			primaryErr:       errBackend,
			wantAvailable:    true,
			wantFallbackCall: true,
		},
		{
			name:             "fallback exists",
			primaryErr:       errBackend,
			fallbackErr:      ErrIndexExists,
			wantAvailable:    true,
			wantFallbackCall: true,
		},
		{
			name:             "both fail",
			primaryErr:       errBackend,
			fallbackErr:      errBackend,
			wantErr:          true,
			wantFallbackCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeIndex{name: "primary", createErr: tt.primaryErr}
			fallback := &fakeIndex{name: "fallback", createErr: tt.fallbackErr}
			m := NewManager(ManagerConfig{Primary: primary, Fallback: fallback})

			assert.False(t, m.Available(), "unavailable before provisioning")

			err := m.Provision(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnavailable)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantAvailable, m.Available())
			assert.Equal(t, 1, primary.creates)
			if tt.wantFallbackCall {
				assert.Equal(t, 1, fallback.creates)
			} else {
				assert.Equal(t, 0, fallback.creates)
			}
		})
	}
}

func TestManager_ProvisionIsOneTime(t *testing.T) {
	primary := &fakeIndex{name: "primary", createErr: errBackend}
	fallback := &fakeIndex{name: "fallback", createErr: errBackend}
	m := NewManager(ManagerConfig{Primary: primary, Fallback: fallback})
	ctx := context.Background()

	require.Error(t, m.Provision(ctx))

	primary.createErr = nil
	assert.ErrorIs(t, m.Provision(ctx), ErrUnavailable, "decision is sticky")
	assert.Equal(t, 1, primary.creates)
	assert.False(t, m.Available())
}

func TestManager_SearchUnavailable(t *testing.T) {
	primary := &fakeIndex{name: "primary", createErr: errBackend}
	fallback := &fakeIndex{name: "fallback", createErr: errBackend}
	m := NewManager(ManagerConfig{Primary: primary, Fallback: fallback, Resolver: mapResolver{}, Metrics: metrics.New()})
	ctx := context.Background()
	_ = m.Provision(ctx)

	_, err := m.Search(ctx, "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, primary.queryCount())
	assert.Equal(t, 0, fallback.queryCount())

	docs, err := m.Search(ctx, "   ")
	require.NoError(t, err, "empty term succeeds even when unavailable")
	assert.Empty(t, docs)
	assert.NotNil(t, docs)
}

func TestManager_SearchEmptyTerm(t *testing.T) {
	primary := &fakeIndex{name: "primary"}
	m := NewManager(ManagerConfig{Primary: primary, Resolver: mapResolver{}})
	require.NoError(t, m.Provision(context.Background()))

	docs, err := m.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 0, primary.queryCount())
}

func TestManager_SearchResolvesHits(t *testing.T) {
	primary := &fakeIndex{name: "primary", keys: []string{"doc:1", "doc:2", "doc:3", "doc:99", "bogus"}}
	resolver := mapResolver{
		1: {"title": "Test Document"},
		3: {"title": "Third"},
	}
	m := NewManager(ManagerConfig{Primary: primary, Resolver: resolver, Limit: 25})
	ctx := context.Background()
	require.NoError(t, m.Provision(ctx))

	docs, err := m.Search(ctx, "  hello ")
	require.NoError(t, err)

	assert.Equal(t, []models.Document{
		{ID: 1, Body: models.Body{"title": "Test Document"}},
		{ID: 3, Body: models.Body{"title": "Third"}},
	}, docs, "missing, unreadable and malformed hits are skipped")
	assert.Equal(t, []string{"*hello*/25"}, primary.queries)
}

func TestManager_SearchFallsBackPerQuery(t *testing.T) {
	primary := &fakeIndex{name: "primary", queryErr: errBackend}
	fallback := &fakeIndex{name: "fallback", keys: []string{"doc:1"}}
	m := NewManager(ManagerConfig{Primary: primary, Fallback: fallback, Resolver: mapResolver{1: {"a": "b"}}})
	ctx := context.Background()
	require.NoError(t, m.Provision(ctx))

	docs, err := m.Search(ctx, "x")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, primary.queryCount())
	assert.Equal(t, 1, fallback.queryCount())

	// The next query starts on the primary again.
	_, err = m.Search(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.queryCount())
}

func TestManager_SearchQueryFailure(t *testing.T) {
	primary := &fakeIndex{name: "primary", queryErr: errBackend}
	fallback := &fakeIndex{name: "fallback", queryErr: errBackend}
	m := NewManager(ManagerConfig{Primary: primary, Fallback: fallback, Resolver: mapResolver{}})
	ctx := context.Background()
	require.NoError(t, m.Provision(ctx))

	_, err := m.Search(ctx, "x")
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.NotErrorIs(t, err, ErrUnavailable)

	noFallback := NewManager(ManagerConfig{Primary: primary, Resolver: mapResolver{}})
	require.NoError(t, noFallback.Provision(ctx))
	_, err = noFallback.Search(ctx, "x")
	assert.ErrorIs(t, err, ErrQueryFailed)
}

func TestManager_Index(t *testing.T) {
	body := models.Body{"title": "x"}
	ctx := context.Background()

	t.Run("only the provisioned index is fed", func(t *testing.T) {
		disk := indexingFake{&fakeIndex{name: "disk"}}
		mem := indexingFake{&fakeIndex{name: "mem"}}
		m := NewManager(ManagerConfig{Primary: disk, Fallback: mem})

		require.NoError(t, m.Index(ctx, 4, body), "no-op before provisioning")
		assert.Empty(t, disk.indexed)

		require.NoError(t, m.Provision(ctx))
		require.NoError(t, m.Index(ctx, 4, body))
		assert.Equal(t, body, disk.indexed["doc:4"])
		assert.Empty(t, mem.indexed)

		disk.indexErr = errBackend
		assert.ErrorIs(t, m.Index(ctx, 5, body), errBackend)
	})

	t.Run("fallback fed when primary failed", func(t *testing.T) {
		disk := indexingFake{&fakeIndex{name: "disk", createErr: errBackend}}
		mem := indexingFake{&fakeIndex{name: "mem"}}
		m := NewManager(ManagerConfig{Primary: disk, Fallback: mem})
		require.NoError(t, m.Provision(ctx))

		require.NoError(t, m.Index(ctx, 4, body))
		assert.Equal(t, body, mem.indexed["doc:4"])
		assert.Empty(t, disk.indexed)
	})

	t.Run("backend maintained index", func(t *testing.T) {
		plain := &fakeIndex{name: "redisearch"}
		mem := indexingFake{&fakeIndex{name: "mem"}}
		m := NewManager(ManagerConfig{Primary: plain, Fallback: mem})
		require.NoError(t, m.Provision(ctx))

		require.NoError(t, m.Index(ctx, 4, body))
		assert.Empty(t, mem.indexed)
	})
}

func TestManager_SearchSkipsUnprovisionedIndexer(t *testing.T) {
	disk := indexingFake{&fakeIndex{name: "disk", queryErr: errBackend}}
	mem := indexingFake{&fakeIndex{name: "mem", keys: []string{"doc:1"}}}
	m := NewManager(ManagerConfig{Primary: disk, Fallback: mem, Resolver: mapResolver{1: {"a": "b"}}})
	ctx := context.Background()
	require.NoError(t, m.Provision(ctx))

	_, err := m.Search(ctx, "x")
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.Equal(t, 1, disk.queryCount())
	assert.Zero(t, mem.queryCount())
}

func TestPattern(t *testing.T) {
	assert.Equal(t, "*hello*", Pattern("hello"))
}

func TestManager_NeedsIndexing(t *testing.T) {
	ctx := context.Background()

	plain := NewManager(ManagerConfig{Primary: &fakeIndex{name: "redisearch"}, Fallback: indexingFake{&fakeIndex{name: "mem"}}})
	require.NoError(t, plain.Provision(ctx))
	assert.False(t, plain.NeedsIndexing())

	bleve := NewManager(ManagerConfig{Primary: indexingFake{&fakeIndex{name: "bleve"}}})
	assert.False(t, bleve.NeedsIndexing(), "nothing to feed before provisioning")
	require.NoError(t, bleve.Provision(ctx))
	assert.True(t, bleve.NeedsIndexing())

	down := NewManager(ManagerConfig{
		Primary:  indexingFake{&fakeIndex{name: "disk", createErr: errBackend}},
		Fallback: indexingFake{&fakeIndex{name: "mem", createErr: errBackend}},
	})
	require.Error(t, down.Provision(ctx))
	assert.False(t, down.NeedsIndexing())
}
