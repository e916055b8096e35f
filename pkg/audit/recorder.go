// Package audit keeps the append-only change history of every document in a
// Redis stream per document (doc:<id>:stream).
package audit

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// DefaultPageSize is how many entries History reads per round trip.
const DefaultPageSize = 100

// ErrEmptyMutation is returned by Append for a mutation without fields;
// streams cannot hold empty entries.
var ErrEmptyMutation = errors.New("mutation has no fields")

// Client is the subset of the Redis client the recorder uses.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

// Recorder appends and replays audit events.
type Recorder struct {
	client   Client
	logger   hclog.Logger
	pageSize int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPageSize sets how many entries History fetches per round trip.
func WithPageSize(n int64) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// New creates a Recorder.
func New(client Client, logger hclog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	r := &Recorder{
		client:   client,
		logger:   logger.Named("audit"),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append records mutation as the newest event of document id and returns
// the ID the stream assigned to it.
func (r *Recorder) Append(ctx context.Context, id int64, mutation models.Body) (string, error) {
	if len(mutation) == 0 {
		return "", ErrEmptyMutation
	}
	values, err := Flatten(mutation)
	if err != nil {
		return "", fmt.Errorf("error flattening mutation for document %d: %w", id, err)
	}

	eventID, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: models.AuditStreamKey(id),
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("error appending audit event for document %d: %w", id, err)
	}

	r.logger.Debug("appended audit event", "doc_id", id, "event_id", eventID)
	return eventID, nil
}

// History returns the events of document id, oldest first. Nothing is read
// until the sequence is iterated; each iteration starts over and reads the
// log as it is at that moment, stopping at the newest event present when
// iteration began. A read error is yielded once and ends the sequence.
func (r *Recorder) History(ctx context.Context, id int64) iter.Seq2[models.AuditEvent, error] {
	stream := models.AuditStreamKey(id)

	return func(yield func(models.AuditEvent, error) bool) {
		newest, err := r.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
		if err != nil {
			yield(models.AuditEvent{}, fmt.Errorf("error reading audit log for document %d: %w", id, err))
			return
		}
		if len(newest) == 0 {
			return
		}
		last := newest[0].ID

		start := "-"
		for {
			page, err := r.client.XRangeN(ctx, stream, start, last, r.pageSize).Result()
			if err != nil {
				yield(models.AuditEvent{}, fmt.Errorf("error reading audit log for document %d: %w", id, err))
				return
			}
			for _, msg := range page {
				ev := models.AuditEvent{ID: msg.ID, Values: Decode(msg.Values)}
				if !yield(ev, nil) {
					return
				}
			}
			if int64(len(page)) < r.pageSize || page[len(page)-1].ID == last {
				return
			}
			start = "(" + page[len(page)-1].ID
		}
	}
}

// Events collects the whole history of document id.
func (r *Recorder) Events(ctx context.Context, id int64) ([]models.AuditEvent, error) {
	events := []models.AuditEvent{}
	for ev, err := range r.History(ctx, id) {
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
