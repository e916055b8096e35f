// Package bleve implements search.Index on an embedded Bleve index, for
// deployments whose Redis server has no RediSearch module.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/hashicorp-forge/rdocs/pkg/models"
	"github.com/hashicorp-forge/rdocs/pkg/search"
)

// Fields indexed for every document.
var fields = []string{"title", "body"}

// Index is a Bleve index over document titles and bodies. It is opened by
// Create and fed through IndexDocument.
type Index struct {
	name string
	path string // empty for an in-memory index

	mu    sync.RWMutex
	index bleve.Index
}

// NewDiskIndex returns an index persisted under path.
func NewDiskIndex(path string) *Index {
	return &Index{name: "bleve:" + path, path: path}
}

// NewMemIndex returns an index held in memory. Its contents are lost when
// the process exits.
func NewMemIndex(name string) *Index {
	return &Index{name: "bleve:" + name}
}

// Name returns the index name.
func (i *Index) Name() string {
	return i.name
}

// Create opens the index, creating it if needed. Opening an index that
// already exists on disk returns an error matching search.ErrIndexExists.
func (i *Index) Create(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.index != nil {
		return fmt.Errorf("%s: %w", i.name, search.ErrIndexExists)
	}

	if i.path == "" {
		idx, err := bleve.NewMemOnly(createDocumentMapping())
		if err != nil {
			return fmt.Errorf("failed to create in-memory index: %w", err)
		}
		i.index = idx
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	idx, existed, err := openOrCreateIndex(i.path, createDocumentMapping())
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	i.index = idx
	if existed {
		return fmt.Errorf("%s: %w", i.name, search.ErrIndexExists)
	}
	return nil
}

// openOrCreateIndex opens an existing Bleve index or creates a new one.
func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (idx bleve.Index, existed bool, err error) {
	idx, err = bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, indexMapping)
		return idx, false, err
	}
	return idx, err == nil, err
}

// createDocumentMapping indexes title and body as text. The standard
// analyzer keeps whole lowercased words so wildcard patterns behave like
// substring matches within a word.
func createDocumentMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false
	for _, f := range fields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func (i *Index) current() (bleve.Index, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return nil, fmt.Errorf("%s: index not open", i.name)
	}
	return i.index, nil
}

// IndexDocument adds or replaces the title and body of the document at key.
func (i *Index) IndexDocument(ctx context.Context, key string, body models.Body) error {
	idx, err := i.current()
	if err != nil {
		return err
	}

	doc := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := body[f]; ok {
			doc[f] = fieldText(v)
		}
	}
	return idx.Index(key, doc)
}

// fieldText renders a field value as indexable text.
func fieldText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := models.MarshalValue(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Query runs pattern as a wildcard query on each field and returns the keys
// of up to limit matching documents.
func (i *Index) Query(ctx context.Context, pattern string, limit int) ([]string, error) {
	idx, err := i.current()
	if err != nil {
		return nil, err
	}

	pattern = strings.ToLower(pattern)
	queries := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		q := bleve.NewWildcardQuery(pattern)
		q.SetField(f)
		queries = append(queries, q)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), limit, 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	keys := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		keys = append(keys, hit.ID)
	}
	return keys, nil
}

// Close closes the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.index == nil {
		return nil
	}
	err := i.index.Close()
	i.index = nil
	return err
}
