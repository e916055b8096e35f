package backends

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// Publisher is the subset of the Redis client the redis backend uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisBackend publishes the mutation body of every change on the
// document's pub/sub channel (docs:<id>:updates). Subscribers receive the
// body as sent by the client, without an envelope. Delivery is fire and
// forget: messages published while nobody listens are lost.
type RedisBackend struct {
	client Publisher
}

// NewRedisBackend creates a new redis pub/sub backend
func NewRedisBackend(client Publisher) *RedisBackend {
	return &RedisBackend{client: client}
}

// Name returns the backend identifier
func (b *RedisBackend) Name() string {
	return "redis"
}

// Handle publishes the change body
func (b *RedisBackend) Handle(ctx context.Context, change *models.Change) error {
	payload, err := change.Body.Marshal()
	if err != nil {
		return NewBackendError(b.Name(), "encode", false, err)
	}

	if err := b.client.Publish(ctx, models.UpdatesChannel(change.DocumentID), payload).Err(); err != nil {
		return NewBackendError(b.Name(), "publish", true, err)
	}
	return nil
}
