// Package redistest provides an in-memory stand-in for the subset of Redis
// (core, RedisJSON, streams, pub/sub and RediSearch) that rdocs uses. It is
// meant for unit tests only and makes no attempt at full command fidelity.
package redistest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Published records one PUBLISH call.
type Published struct {
	Channel string
	Message string
}

type index struct {
	on     string // JSON or HASH
	prefix string
}

// Fake implements the Redis client interfaces declared by the rdocs
// packages. The zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	counters  map[string]int64
	docs      map[string]string
	streams   map[string][]redis.XMessage
	indexes   map[string]index
	published []Published
	followers map[string][]chan *redis.Message
	calls     map[string]int
	failures  map[string]error

	streamSeq int64
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		counters:  map[string]int64{},
		docs:      map[string]string{},
		streams:   map[string][]redis.XMessage{},
		indexes:   map[string]index{},
		followers: map[string][]chan *redis.Message{},
		calls:     map[string]int{},
		failures:  map[string]error{},
	}
}

// Fail makes every later call of command return err. The command may be
// qualified with its first argument ("FT.CREATE idx:docs") to target a
// single key or index. A nil err clears the failure.
func (f *Fake) Fail(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, command)
		return
	}
	f.failures[command] = err
}

// Calls returns how many times command was issued, failed calls included.
func (f *Fake) Calls(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[command]
}

// Published returns every message published so far.
func (f *Fake) Published() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Published, len(f.published))
	copy(out, f.published)
	return out
}

// StreamLen returns the number of entries in a stream.
func (f *Fake) StreamLen(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams[key])
}

// PutJSON stores a raw JSON document, bypassing the command surface.
func (f *Fake) PutJSON(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[key] = value
}

// Delete removes a document key.
func (f *Fake) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, key)
}

// record counts the call and returns the injected failure, if any. Callers
// must hold f.mu.
func (f *Fake) record(command string, firstArg string) error {
	f.calls[command]++
	if firstArg != "" {
		f.calls[command+" "+firstArg]++
		if err, ok := f.failures[command+" "+firstArg]; ok {
			return err
		}
	}
	return f.failures[command]
}

// Ping answers PONG.
func (f *Fake) Ping(ctx context.Context) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PING", ""); err != nil {
		return redis.NewStatusResult("", err)
	}
	return redis.NewStatusResult("PONG", nil)
}

// Incr increments an integer counter.
func (f *Fake) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("INCR", key); err != nil {
		return redis.NewIntResult(0, err)
	}
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

// Get returns the value of a counter.
func (f *Fake) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GET", key); err != nil {
		return redis.NewStringResult("", err)
	}
	n, ok := f.counters[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(strconv.FormatInt(n, 10), nil)
}

// Exists counts how many of keys hold a document, counter or stream.
func (f *Fake) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := ""
	if len(keys) > 0 {
		first = keys[0]
	}
	if err := f.record("EXISTS", first); err != nil {
		return redis.NewIntResult(0, err)
	}
	var n int64
	for _, k := range keys {
		_, doc := f.docs[k]
		_, ctr := f.counters[k]
		_, stream := f.streams[k]
		if doc || ctr || stream {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Publish records the message and delivers it to followers of channel.
func (f *Fake) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PUBLISH", channel); err != nil {
		return redis.NewIntResult(0, err)
	}
	payload := fmt.Sprint(message)
	if b, ok := message.([]byte); ok {
		payload = string(b)
	}
	f.published = append(f.published, Published{Channel: channel, Message: payload})

	var delivered int64
	for _, ch := range f.followers[channel] {
		select {
		case ch <- &redis.Message{Channel: channel, Payload: payload}:
			delivered++
		default:
		}
	}
	return redis.NewIntResult(delivered, nil)
}

// Follow subscribes to channel. Messages published afterwards are delivered
// on the returned channel until stop is called.
func (f *Fake) Follow(channel string) (msgs <-chan *redis.Message, stop func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *redis.Message, 64)
	f.followers[channel] = append(f.followers[channel], ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			list := f.followers[channel]
			for i, c := range list {
				if c == ch {
					f.followers[channel] = append(list[:i], list[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// XAdd appends an entry with an auto-generated ID.
func (f *Fake) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("XADD", a.Stream); err != nil {
		return redis.NewStringResult("", err)
	}

	values := map[string]interface{}{}
	switch v := a.Values.(type) {
	case map[string]interface{}:
		for k, val := range v {
			values[k] = fmt.Sprint(val)
		}
	case []interface{}:
		if len(v)%2 != 0 {
			return redis.NewStringResult("", fmt.Errorf("ERR wrong number of arguments for 'xadd' command"))
		}
		for i := 0; i < len(v); i += 2 {
			values[fmt.Sprint(v[i])] = fmt.Sprint(v[i+1])
		}
	case []string:
		for i := 0; i+1 < len(v); i += 2 {
			values[v[i]] = v[i+1]
		}
	default:
		return redis.NewStringResult("", fmt.Errorf("redistest: unsupported XAdd values %T", a.Values))
	}
	if len(values) == 0 {
		return redis.NewStringResult("", fmt.Errorf("ERR wrong number of arguments for 'xadd' command"))
	}

	f.streamSeq++
	id := fmt.Sprintf("%d-%d", time.Now().UnixMilli(), f.streamSeq)
	f.streams[a.Stream] = append(f.streams[a.Stream], redis.XMessage{ID: id, Values: values})
	return redis.NewStringResult(id, nil)
}

// XRangeN returns up to count entries between start and stop, oldest first.
func (f *Fake) XRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("XRANGE", stream); err != nil {
		return redis.NewXMessageSliceCmdResult(nil, err)
	}
	var out []redis.XMessage
	for _, m := range f.streams[stream] {
		if !afterLower(m.ID, start) || !beforeUpper(m.ID, stop) {
			continue
		}
		out = append(out, m)
		if count > 0 && int64(len(out)) == count {
			break
		}
	}
	return redis.NewXMessageSliceCmdResult(out, nil)
}

// XRevRangeN returns up to count entries between start (upper) and stop
// (lower), newest first.
func (f *Fake) XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("XREVRANGE", stream); err != nil {
		return redis.NewXMessageSliceCmdResult(nil, err)
	}
	entries := f.streams[stream]
	var out []redis.XMessage
	for i := len(entries) - 1; i >= 0; i-- {
		m := entries[i]
		if !beforeUpper(m.ID, start) || !afterLower(m.ID, stop) {
			continue
		}
		out = append(out, m)
		if count > 0 && int64(len(out)) == count {
			break
		}
	}
	return redis.NewXMessageSliceCmdResult(out, nil)
}

// Do handles the module commands (JSON.*, FT.*) that have no typed helper.
func (f *Fake) Do(ctx context.Context, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(args) == 0 {
		return redis.NewCmdResult(nil, fmt.Errorf("ERR empty command"))
	}
	name := strings.ToUpper(fmt.Sprint(args[0]))
	first := ""
	if len(args) > 1 {
		first = fmt.Sprint(args[1])
	}
	if err := f.record(name, first); err != nil {
		return redis.NewCmdResult(nil, err)
	}

	switch name {
	case "JSON.SET":
		if len(args) != 4 {
			return redis.NewCmdResult(nil, fmt.Errorf("ERR wrong number of arguments for 'JSON.SET' command"))
		}
		value := fmt.Sprint(args[3])
		if !json.Valid([]byte(value)) {
			return redis.NewCmdResult(nil, fmt.Errorf("ERR invalid JSON"))
		}
		f.docs[first] = value
		return redis.NewCmdResult("OK", nil)

	case "JSON.GET":
		v, ok := f.docs[first]
		if !ok {
			return redis.NewCmdResult(nil, redis.Nil)
		}
		return redis.NewCmdResult("["+v+"]", nil)

	case "FT.CREATE":
		if _, ok := f.indexes[first]; ok {
			return redis.NewCmdResult(nil, fmt.Errorf("Index already exists"))
		}
		idx := index{}
		for i := 2; i+1 < len(args); i++ {
			switch strings.ToUpper(fmt.Sprint(args[i])) {
			case "ON":
				idx.on = strings.ToUpper(fmt.Sprint(args[i+1]))
			case "PREFIX":
				if i+2 < len(args) {
					idx.prefix = fmt.Sprint(args[i+2])
				}
			}
		}
		f.indexes[first] = idx
		return redis.NewCmdResult("OK", nil)

	case "FT.SEARCH":
		idx, ok := f.indexes[first]
		if !ok {
			return redis.NewCmdResult(nil, fmt.Errorf("%s: no such index", first))
		}
		if len(args) < 3 {
			return redis.NewCmdResult(nil, fmt.Errorf("ERR wrong number of arguments for 'FT.SEARCH' command"))
		}
		limit := 10
		for i := 3; i+2 < len(args); i++ {
			if strings.ToUpper(fmt.Sprint(args[i])) == "LIMIT" {
				if n, err := strconv.Atoi(fmt.Sprint(args[i+2])); err == nil {
					limit = n
				}
			}
		}
		return redis.NewCmdResult(f.search(idx, fmt.Sprint(args[2]), limit), nil)
	}

	return redis.NewCmdResult(nil, fmt.Errorf("ERR unknown command '%s'", name))
}

// search scans JSON documents. Hash indexes never match because the fake
// stores no hashes, mirroring a JSON-only deployment.
func (f *Fake) search(idx index, query string, limit int) []interface{} {
	term := strings.ToLower(strings.Trim(query, "*"))
	var keys []string
	if idx.on == "JSON" {
		for key, raw := range f.docs {
			if !strings.HasPrefix(key, idx.prefix) {
				continue
			}
			var doc map[string]any
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				continue
			}
			for _, field := range []string{"title", "body"} {
				if s, ok := doc[field].(string); ok && strings.Contains(strings.ToLower(s), term) {
					keys = append(keys, key)
					break
				}
			}
		}
	}
	sort.Strings(keys)

	out := []interface{}{int64(len(keys))}
	for i, k := range keys {
		if i == limit {
			break
		}
		out = append(out, k)
	}
	return out
}

func parseID(id string) (ms, seq int64) {
	parts := strings.SplitN(id, "-", 2)
	ms, _ = strconv.ParseInt(parts[0], 10, 64)
	if len(parts) == 2 {
		seq, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	return ms, seq
}

func compareID(a, b string) int {
	am, as := parseID(a)
	bm, bs := parseID(b)
	switch {
	case am != bm:
		if am < bm {
			return -1
		}
		return 1
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func afterLower(id, lower string) bool {
	switch {
	case lower == "-":
		return true
	case strings.HasPrefix(lower, "("):
		return compareID(id, lower[1:]) > 0
	}
	return compareID(id, lower) >= 0
}

func beforeUpper(id, upper string) bool {
	switch {
	case upper == "+":
		return true
	case strings.HasPrefix(upper, "("):
		return compareID(id, upper[1:]) < 0
	}
	return compareID(id, upper) <= 0
}
