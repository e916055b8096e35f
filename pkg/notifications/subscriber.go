package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// ErrSubscriptionClosed is returned by Listen when the feed ends before the
// context is cancelled, for example because the connection dropped.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Feed is an open subscription to one channel.
type Feed interface {
	Messages() <-chan *redis.Message
	Close() error
}

// Source opens feeds.
type Source interface {
	Subscribe(ctx context.Context, channel string) (Feed, error)
}

// RedisSource opens feeds on a Redis server.
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource creates a Source backed by client.
func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

// Subscribe subscribes to channel and waits for the server to confirm.
func (s *RedisSource) Subscribe(ctx context.Context, channel string) (Feed, error) {
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return &redisFeed{ps: ps, ch: ps.Channel()}, nil
}

type redisFeed struct {
	ps *redis.PubSub
	ch <-chan *redis.Message
}

func (f *redisFeed) Messages() <-chan *redis.Message { return f.ch }
func (f *redisFeed) Close() error                    { return f.ps.Close() }

// Subscriber consumes document update channels.
type Subscriber struct {
	source Source
	logger hclog.Logger
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(source Source, logger hclog.Logger) *Subscriber {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Subscriber{
		source: source,
		logger: logger.Named("subscriber"),
	}
}

// Subscription is an open feed of updates to one document.
type Subscription struct {
	// DocumentID is the document whose updates are delivered.
	DocumentID int64
	// Channel is the pub/sub channel the feed reads.
	Channel string

	feed      Feed
	logger    hclog.Logger
	closeOnce sync.Once
	closeErr  error
}

// Subscribe opens a subscription to the update channel of document id. The
// caller must Close it. Messages published before Subscribe returns are not
// delivered.
func (s *Subscriber) Subscribe(ctx context.Context, id int64) (*Subscription, error) {
	channel := models.UpdatesChannel(id)

	feed, err := s.source.Subscribe(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("error subscribing to %s: %w", channel, err)
	}
	s.logger.Debug("listening for updates", "doc_id", id, "channel", channel)

	return &Subscription{
		DocumentID: id,
		Channel:    channel,
		feed:       feed,
		logger:     s.logger,
	}, nil
}

// Next blocks until the next update arrives. It returns ctx.Err() when ctx
// is done and ErrSubscriptionClosed once the feed has ended.
func (sub *Subscription) Next(ctx context.Context) (Update, error) {
	select {
	case <-ctx.Done():
		return Update{}, ctx.Err()
	case msg, ok := <-sub.feed.Messages():
		if !ok {
			return Update{}, ErrSubscriptionClosed
		}
		u := NewUpdate(msg.Channel, msg.Payload)
		if u.Body == nil {
			sub.logger.Debug("update payload is not a JSON object", "doc_id", sub.DocumentID)
		}
		return u, nil
	}
}

// Close ends the subscription. It is safe to call more than once.
func (sub *Subscription) Close() error {
	sub.closeOnce.Do(func() {
		sub.closeErr = sub.feed.Close()
	})
	return sub.closeErr
}

// Listen subscribes to the update channel of document id and calls fn for
// every message until ctx is cancelled, fn returns an error, or the feed
// ends. Cancellation returns nil; a feed that ends on its own returns
// ErrSubscriptionClosed.
func (s *Subscriber) Listen(ctx context.Context, id int64, fn func(Update) error) error {
	sub, err := s.Subscribe(ctx, id)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		u, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
	}
}
