// Package docstore is the authoritative store of documents. Each document is
// a RedisJSON value under doc:<id>; IDs come from an atomic counter.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// CounterKey holds the last allocated document ID.
const CounterKey = "next_doc_id"

var (
	// ErrNotFound is returned for IDs that were never created.
	ErrNotFound = errors.New("document not found")

	// ErrWriteFailed wraps backend errors on the write path.
	ErrWriteFailed = errors.New("document write failed")

	// ErrReadFailed wraps backend errors on the read path.
	ErrReadFailed = errors.New("document read failed")
)

// Client is the subset of the Redis client the store uses. JSON commands are
// issued through Do so the store works with any RedisJSON-capable server.
type Client interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
}

// Store reads and writes documents.
type Store struct {
	client Client
	logger hclog.Logger
}

// New creates a Store.
func New(client Client, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		client: client,
		logger: logger.Named("docstore"),
	}
}

// AllocateID reserves the next document ID. IDs start at 1 and are never
// reused.
func (s *Store) AllocateID(ctx context.Context) (int64, error) {
	id, err := s.client.Incr(ctx, CounterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: error allocating document ID: %v", ErrWriteFailed, err)
	}
	return id, nil
}

// Create stores body under a newly allocated ID and returns the ID.
func (s *Store) Create(ctx context.Context, body models.Body) (int64, error) {
	id, err := s.AllocateID(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.set(ctx, id, body); err != nil {
		return 0, err
	}

	s.logger.Debug("created document", "doc_id", id)
	return id, nil
}

// Get returns the stored body of a document.
func (s *Store) Get(ctx context.Context, id int64) (models.Body, error) {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	raw, err := s.client.Do(ctx, "JSON.GET", Key(id), "$").Text()
	if errors.Is(err, redis.Nil) {
		// Deleted between the existence check and the read.
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: error reading document %d: %v", ErrReadFailed, id, err)
	}

	body, err := decodePathResult(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: document %d: %v", ErrReadFailed, id, err)
	}
	return body, nil
}

// Replace overwrites the whole value of an existing document. Fields missing
// from body are dropped.
func (s *Store) Replace(ctx context.Context, id int64, body models.Body) error {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.set(ctx, id, body); err != nil {
		return err
	}

	s.logger.Debug("replaced document", "doc_id", id)
	return nil
}

// LastID returns the most recently allocated ID, or 0 when no document was
// ever created.
func (s *Store) LastID(ctx context.Context) (int64, error) {
	id, err := s.client.Get(ctx, CounterKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: error reading %s: %v", ErrReadFailed, CounterKey, err)
	}
	return id, nil
}

// Exists reports whether a document was created under id.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	n, err := s.client.Exists(ctx, Key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: error checking document %d: %v", ErrReadFailed, id, err)
	}
	return n > 0, nil
}

func (s *Store) set(ctx context.Context, id int64, body models.Body) error {
	payload, err := body.Marshal()
	if err != nil {
		return fmt.Errorf("%w: error encoding document %d: %v", ErrWriteFailed, id, err)
	}
	if err := s.client.Do(ctx, "JSON.SET", Key(id), "$", string(payload)).Err(); err != nil {
		return fmt.Errorf("%w: error writing document %d: %v", ErrWriteFailed, id, err)
	}
	return nil
}

// decodePathResult unwraps the single-element array JSON.GET returns for the
// root path "$".
func decodePathResult(raw string) (models.Body, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		raw = strings.TrimSpace(raw[1:])
		if !strings.HasSuffix(raw, "]") {
			return nil, fmt.Errorf("malformed JSON.GET reply")
		}
		raw = strings.TrimSpace(raw[:len(raw)-1])
		if raw == "" {
			return nil, ErrNotFound
		}
	}
	return models.UnmarshalBody([]byte(raw))
}

// Key returns the store key of document id. ParseKey reverses it.
func Key(id int64) string {
	return models.DocumentKey(id)
}

// ParseKey extracts the document ID from a key of the form doc:<id>.
func ParseKey(key string) (int64, error) {
	rest, ok := strings.CutPrefix(key, models.DocumentKeyPrefix)
	if !ok {
		return 0, fmt.Errorf("key %q is not a document key", key)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("key %q is not a document key", key)
	}
	return id, nil
}
