// Package querycache is an in-process query cache keyed by [Key].
//
// It keeps the last response per key with its fetch status, coalesces
// concurrent fetches of one key into a single call and lets callers mark
// entries stale by key prefix. Subscribers receive an [Event] whenever an
// entry under their prefix changes.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// ErrQueryDisabled is returned by [Cache.Fetch] for a query whose Enabled flag is false.
var ErrQueryDisabled = errors.New("query disabled")

// Status is the fetch status of an entry.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one cached resource.
type Entry struct {
	Key         Key
	Data        any
	Err         error
	Status      Status
	UpdatedAt   time.Time
	Invalidated bool
	Fetching    bool
	FetchCount  int

	// generation counts invalidations so a fetch can tell whether one
	// happened while it was in flight.
	generation uint64
}

// Query describes how to load one key.
type Query struct {
	Key     Key
	Fn      func(ctx context.Context) (any, error)
	Enabled bool
	// StaleTime overrides the cache default when positive.
	StaleTime time.Duration
}

// EventKind tells subscribers what happened to an entry.
type EventKind int

const (
	EventUpdated EventKind = iota
	EventInvalidated
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventInvalidated:
		return "invalidated"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind EventKind
	Key  Key
}

type subscriber struct {
	prefix Key
	ch     chan Event
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	subs      map[int]subscriber
	nextSub   int
	group     singleflight.Group
	staleTime time.Duration
	now       func() time.Time
	logger    *log.Logger
}

// Option configures a [Cache].
type Option func(*Cache)

// WithStaleTime sets how long a successful entry is served without refetching.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*Entry),
		subs:    make(map[int]subscriber),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the entry at key.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Set stores data at key as a successful, fresh entry. Existing data is overwritten.
func (c *Cache) Set(key Key, data any) {
	c.mu.Lock()
	e := c.entry(key)
	e.Data = data
	e.Err = nil
	e.Status = StatusSuccess
	e.UpdatedAt = c.now()
	e.Invalidated = false
	c.mu.Unlock()

	c.publish(Event{Kind: EventUpdated, Key: key})
}

// Invalidate marks every entry whose key starts with prefix as stale and
// returns how many entries matched. Subscribers are notified even when no
// entry exists yet so mounted views can fetch.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	var matched []Key
	for _, e := range c.entries {
		if e.Key.HasPrefix(prefix) {
			e.Invalidated = true
			e.generation++
			matched = append(matched, e.Key)
		}
	}
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debug("invalidated cache entries", "prefix", prefix.String(), "count", len(matched))
	}

	if len(matched) == 0 {
		c.publish(Event{Kind: EventInvalidated, Key: prefix})
	}
	for _, k := range matched {
		c.publish(Event{Kind: EventInvalidated, Key: k})
	}
	return len(matched)
}

// Fetch returns fresh cached data for q.Key or calls q.Fn. Concurrent calls
// for the same key share one in-flight call. Errors are recorded on the entry;
// previously loaded data is kept.
//
// The shared call is not cancelled by any one caller; a cancelled caller stops
// waiting and gets ctx.Err(). An entry invalidated while its fetch was in
// flight keeps the new data but stays invalidated, and subscribers get a
// second [EventInvalidated] so they fetch again.
func (c *Cache) Fetch(ctx context.Context, q Query) (any, error) {
	if !q.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrQueryDisabled, q.Key)
	}
	if q.Fn == nil {
		return nil, fmt.Errorf("query %s has no fetch function", q.Key)
	}

	staleTime := c.staleTime
	if q.StaleTime > 0 {
		staleTime = q.StaleTime
	}

	if data, ok := c.fresh(q.Key, staleTime); ok {
		return data, nil
	}

	id := q.Key.String()
	fetchCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan(id, func() (any, error) {
		c.mu.Lock()
		e := c.entry(q.Key)
		e.Fetching = true
		e.FetchCount++
		gen := e.generation
		c.mu.Unlock()

		data, err := q.Fn(fetchCtx)

		c.mu.Lock()
		e = c.entry(q.Key)
		e.Fetching = false
		raced := e.generation != gen
		if err != nil {
			e.Err = err
			e.Status = StatusError
		} else {
			e.Data = data
			e.Err = nil
			e.Status = StatusSuccess
			e.UpdatedAt = c.now()
			e.Invalidated = raced
		}
		c.mu.Unlock()

		c.publish(Event{Kind: EventUpdated, Key: q.Key})
		if raced {
			if c.logger != nil {
				c.logger.Debug("entry invalidated during fetch", "key", id)
			}
			c.publish(Event{Kind: EventInvalidated, Key: q.Key})
		}
		return data, err
	})

	select {
	case res := <-results:
		if res.Shared && c.logger != nil {
			c.logger.Debug("coalesced fetch", "key", id)
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe returns a channel of events for keys under prefix and a cancel
// function. Slow subscribers miss events rather than block writers.
func (c *Cache) Subscribe(prefix Key) (<-chan Event, func()) {
	ch := make(chan Event, 32)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = subscriber{prefix: prefix, ch: ch}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Keys lists the keys currently cached under prefix.
func (c *Cache) Keys(prefix Key) []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []Key
	for _, e := range c.entries {
		if e.Key.HasPrefix(prefix) {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every entry. Subscribers stay registered.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	c.publish(Event{Kind: EventReset})
}

// entry returns the entry for key, creating a pending one. Callers hold mu.
func (c *Cache) entry(key Key) *Entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &Entry{Key: NewKey(key...), Status: StatusPending}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) fresh(key Key, staleTime time.Duration) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key.String()]
	if !ok || e.Status != StatusSuccess || e.Invalidated {
		return nil, false
	}
	if c.now().Sub(e.UpdatedAt) >= staleTime {
		return nil, false
	}
	return e.Data, true
}

func (c *Cache) publish(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.subs {
		if ev.Kind != EventReset && !ev.Key.HasPrefix(s.prefix) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// FetchAs is [Cache.Fetch] with the result asserted to T.
func FetchAs[T any](ctx context.Context, c *Cache, q Query) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, q)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cached value at %s is %T, not %T", q.Key, v, zero)
	}
	return t, nil
}

// GetAs returns the data at key asserted to T.
func GetAs[T any](c *Cache, key Key) (T, bool) {
	var zero T
	e, ok := c.Get(key)
	if !ok || e.Data == nil {
		return zero, false
	}
	t, ok := e.Data.(T)
	return t, ok
}
