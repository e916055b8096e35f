package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/rdocs/internal/redistest"
)

type fakeFeed struct {
	msgs <-chan *redis.Message
	stop func()
}

func (f *fakeFeed) Messages() <-chan *redis.Message { return f.msgs }
func (f *fakeFeed) Close() error                    { f.stop(); return nil }

type fakeSource struct {
	fake  *redistest.Fake
	ready chan *fakeFeed
	err   error
}

func newFakeSource(fake *redistest.Fake) *fakeSource {
	return &fakeSource{fake: fake, ready: make(chan *fakeFeed, 1)}
}

func (s *fakeSource) Subscribe(ctx context.Context, channel string) (Feed, error) {
	if s.err != nil {
		return nil, s.err
	}
	msgs, stop := s.fake.Follow(channel)
	feed := &fakeFeed{msgs: msgs, stop: stop}
	s.ready <- feed
	return feed, nil
}

func TestSubscriber_ListenDeliversUpdates(t *testing.T) {
	fake := redistest.New()
	source := newFakeSource(fake)
	sub := NewSubscriber(source, nil)

	errStop := errors.New("enough")
	var got []Update
	done := make(chan error, 1)
	go func() {
		done <- sub.Listen(context.Background(), 5, func(u Update) error {
			got = append(got, u)
			if len(got) == 2 {
				return errStop
			}
			return nil
		})
	}()

	select {
	case <-source.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription was not opened")
	}

	ctx := context.Background()
	fake.Publish(ctx, "docs:6:updates", `{"ignored":true}`)
	fake.Publish(ctx, "docs:5:updates", `{"title":"Updated"}`)
	fake.Publish(ctx, "docs:5:updates", `not json`)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errStop)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not return")
	}

	require.Len(t, got, 2)
	assert.Equal(t, int64(5), got[0].DocumentID)
	assert.Equal(t, "Updated", got[0].Body["title"])
	assert.Equal(t, `{"title":"Updated"}`, got[0].Payload)
	assert.Nil(t, got[1].Body)
	assert.Equal(t, "not json", got[1].Payload)
}

func TestSubscriber_ListenStopsOnCancel(t *testing.T) {
	source := newFakeSource(redistest.New())
	sub := NewSubscriber(source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sub.Listen(ctx, 1, func(Update) error { return nil })
	}()

	<-source.ready
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener ignored cancellation")
	}
}

func TestSubscriber_ListenFeedClosed(t *testing.T) {
	source := newFakeSource(redistest.New())
	sub := NewSubscriber(source, nil)

	done := make(chan error, 1)
	go func() {
		done <- sub.Listen(context.Background(), 1, func(Update) error { return nil })
	}()

	feed := <-source.ready
	feed.stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSubscriptionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not notice the closed feed")
	}
}

func TestSubscriber_SubscribeError(t *testing.T) {
	source := newFakeSource(redistest.New())
	source.err = errors.New("NOAUTH")
	sub := NewSubscriber(source, nil)

	err := sub.Listen(context.Background(), 1, func(Update) error { return nil })
	assert.ErrorContains(t, err, "docs:1:updates")
}

func TestSubscriber_Subscribe(t *testing.T) {
	fake := redistest.New()
	source := newFakeSource(fake)
	sub := NewSubscriber(source, nil)
	ctx := context.Background()

	s, err := sub.Subscribe(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), s.DocumentID)
	assert.Equal(t, "docs:8:updates", s.Channel)
	<-source.ready

	fake.Publish(ctx, "docs:8:updates", `{"title":"First"}`)
	u, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "First", u.Body["title"])

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Next(cctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestSubscriber_SubscribeFails(t *testing.T) {
	source := newFakeSource(redistest.New())
	source.err = errors.New("connection refused")
	sub := NewSubscriber(source, nil)

	s, err := sub.Subscribe(context.Background(), 2)
	assert.Nil(t, s)
	assert.ErrorContains(t, err, "docs:2:updates")
}

func TestNewUpdate(t *testing.T) {
	tests := []struct {
		channel string
		id      int64
	}{
		{"docs:12:updates", 12},
		{"docs:x:updates", 0},
		{"doc:12", 0},
		{"docs:12", 0},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			assert.Equal(t, tt.id, NewUpdate(tt.channel, "{}").DocumentID)
		})
	}

	u := NewUpdate("docs:1:updates", `[1,2]`)
	assert.Nil(t, u.Body, "arrays are not bodies")
}
