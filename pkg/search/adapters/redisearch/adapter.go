// Package redisearch implements search.Index on the RediSearch module. The
// indexes follow the doc: key prefix, so documents are indexed by the server
// as soon as they are written.
package redisearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hashicorp-forge/rdocs/pkg/models"
	"github.com/hashicorp-forge/rdocs/pkg/search"
)

const (
	// PrimaryIndexName indexes documents stored as RedisJSON values.
	PrimaryIndexName = "idx:docs"

	// FallbackIndexName indexes documents stored as hashes.
	FallbackIndexName = "idx:docs_hash"
)

// Client is the subset of the Redis client the adapter uses.
type Client interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
}

// Schema selects how documents are read by the index.
type Schema string

const (
	SchemaJSON Schema = "JSON"
	SchemaHash Schema = "HASH"
)

// Index is a RediSearch index over the title and body fields.
type Index struct {
	client Client
	name   string
	schema Schema
}

// NewIndex creates a handle for the named index. Nothing is sent to the
// server until Create or Query.
func NewIndex(client Client, name string, schema Schema) *Index {
	return &Index{client: client, name: name, schema: schema}
}

// NewPrimary returns the JSON index idx:docs.
func NewPrimary(client Client) *Index {
	return NewIndex(client, PrimaryIndexName, SchemaJSON)
}

// NewFallback returns the hash index idx:docs_hash.
func NewFallback(client Client) *Index {
	return NewIndex(client, FallbackIndexName, SchemaHash)
}

// Name returns the index name.
func (i *Index) Name() string {
	return i.name
}

// Create issues FT.CREATE.
func (i *Index) Create(ctx context.Context) error {
	err := i.client.Do(ctx, i.createArgs()...).Err()
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "index already exists") {
		return fmt.Errorf("%s: %w", i.name, search.ErrIndexExists)
	}
	return err
}

func (i *Index) createArgs() []interface{} {
	args := []interface{}{
		"FT.CREATE", i.name,
		"ON", string(i.schema),
		"PREFIX", 1, models.DocumentKeyPrefix,
		"SCHEMA",
	}
	if i.schema == SchemaJSON {
		return append(args,
			"$.title", "AS", "title", "TEXT",
			"$.body", "AS", "body", "TEXT",
		)
	}
	return append(args,
		"title", "TEXT",
		"body", "TEXT",
	)
}

// Query issues FT.SEARCH without content and returns the matching keys.
func (i *Index) Query(ctx context.Context, pattern string, limit int) ([]string, error) {
	reply, err := i.client.Do(ctx,
		"FT.SEARCH", i.name, pattern,
		"NOCONTENT",
		"LIMIT", 0, limit,
	).Result()
	if err != nil {
		return nil, err
	}
	return parseKeys(reply)
}

// parseKeys reads a RESP2 FT.SEARCH NOCONTENT reply: the total count
// followed by one key per hit.
func parseKeys(reply interface{}) ([]string, error) {
	items, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected FT.SEARCH reply type %T", reply)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty FT.SEARCH reply")
	}
	if _, ok := items[0].(int64); !ok {
		return nil, fmt.Errorf("unexpected FT.SEARCH total type %T", items[0])
	}

	keys := make([]string, 0, len(items)-1)
	for _, item := range items[1:] {
		key, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected FT.SEARCH key type %T", item)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
