package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// EventType describes what happened to a key.
type EventType string

const (
	EventUpdated     EventType = "updated"
	EventInvalidated EventType = "invalidated"
	EventOutOfDate   EventType = "out_of_date"
	EventRemoved     EventType = "removed"
)

// Event is published to subscribers after every state change of a key.
type Event struct {
	Type    EventType
	Key     string
	Version uint64
}

// Client is the consistency layer over a Store. Only the renewal manager and
// the billing session write through it; views read and subscribe.
//
// Versions, pending mutations and coalesced loads are tracked in memory, so
// the ordering guarantees hold only among callers sharing one Client. Two
// processes over the same Store can overwrite each other's newer values.
type Client struct {
	store Store
	now   func() time.Time
	log   *slog.Logger

	// mu makes read-modify-write sequences on a key atomic within the process.
	mu       sync.Mutex
	versions map[string]uint64
	pending  map[string]int

	flight singleflight.Group

	subMu      sync.RWMutex
	subs       map[chan Event]struct{}
	bufferSize int
}

// Option configures a Client.
type Option func(*Client)

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithEventBuffer sets the per-subscriber buffer. Slow subscribers lose events.
func WithEventBuffer(size int) Option {
	return func(c *Client) {
		c.bufferSize = max(size, 1)
	}
}

// NewClient creates a consistency layer on top of store.
func NewClient(store Store, opts ...Option) *Client {
	if store == nil {
		panic("cache: store is required")
	}
	c := &Client{
		store:      store,
		now:        time.Now,
		log:        logger.Nop(),
		versions:   make(map[string]uint64),
		pending:    make(map[string]int),
		subs:       make(map[chan Event]struct{}),
		bufferSize: 16,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Entry returns the raw record for key.
func (c *Client) Entry(ctx context.Context, key string) (Entry, bool, error) {
	return c.store.Get(ctx, key)
}

// Version returns the last version written for key by this client.
func (c *Client) Version(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key]
}

// Pending reports whether an optimistic mutation for key is in flight.
func (c *Client) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[key] > 0
}

// IsStale reports whether key is missing, invalidated or out of date.
func (c *Client) IsStale(ctx context.Context, key string) bool {
	e, ok, err := c.store.Get(ctx, key)
	return err != nil || !ok || e.Stale || e.OutOfDate
}

// Invalidate marks keys as stale. Values stay readable until refetched.
func (c *Client) Invalidate(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.update(ctx, key, EventInvalidated, func(e *Entry) { e.Stale = true }); err != nil {
			return err
		}
	}
	return nil
}

// InvalidatePrefix marks every key starting with prefix as stale.
func (c *Client) InvalidatePrefix(ctx context.Context, prefix string) error {
	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	return c.Invalidate(ctx, keys...)
}

// MarkOutOfDate flags key as not trustworthy until the next successful fetch.
func (c *Client) MarkOutOfDate(ctx context.Context, key string) error {
	return c.update(ctx, key, EventOutOfDate, func(e *Entry) { e.OutOfDate = true })
}

// Remove deletes key.
func (c *Client) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	err := c.store.Delete(ctx, key)
	version := c.bump(key)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.publish(Event{Type: EventRemoved, Key: key, Version: version})
	return nil
}

// Subscribe returns a channel of cache events that is closed when ctx is done.
func (c *Client) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, c.bufferSize)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	go func() {
		<-ctx.Done()
		c.subMu.Lock()
		delete(c.subs, ch)
		close(ch)
		c.subMu.Unlock()
	}()
	return ch
}

// update rewrites the flags of an existing record. Missing keys are ignored.
func (c *Client) update(ctx context.Context, key string, typ EventType, fn func(*Entry)) error {
	c.mu.Lock()
	e, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		c.mu.Unlock()
		return err
	}
	fn(&e)
	e.Version = c.bump(key)
	err = c.store.Set(ctx, key, e)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.log.LogAttrs(ctx, slog.LevelDebug, "cache entry changed",
		logger.CacheKey(key),
		slog.String("event", string(typ)),
	)
	c.publish(Event{Type: typ, Key: key, Version: e.Version})
	return nil
}

// writeMode controls when write yields to concurrent writers.
type writeMode int

const (
	writeAlways writeMode = iota
	// writeIfUnchanged skips the write when the version moved.
	writeIfUnchanged
	// writeIfIdle additionally skips it while a mutation is pending.
	writeIfIdle
)

// write stores raw as the fresh value of key and reports whether the write
// happened. Conditional modes compare the key version against expect.
func (c *Client) write(ctx context.Context, key string, raw []byte, mode writeMode, expect uint64) (bool, error) {
	c.mu.Lock()
	if mode != writeAlways && c.versions[key] != expect || mode == writeIfIdle && c.pending[key] > 0 {
		c.mu.Unlock()
		return false, nil
	}
	version := c.bump(key)
	err := c.store.Set(ctx, key, Entry{Value: raw, FetchedAt: c.now(), Version: version})
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	c.publish(Event{Type: EventUpdated, Key: key, Version: version})
	return true, nil
}

// restore puts a snapshot back. A missing snapshot deletes the key.
func (c *Client) restore(ctx context.Context, key string, snap Entry, existed bool) error {
	c.mu.Lock()
	version := c.bump(key)
	var err error
	if existed {
		snap.Version = version
		err = c.store.Set(ctx, key, snap)
	} else {
		err = c.store.Delete(ctx, key)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.publish(Event{Type: EventUpdated, Key: key, Version: version})
	return nil
}

// Must be called with mu held.
func (c *Client) bump(key string) uint64 {
	c.versions[key]++
	return c.versions[key]
}

func (c *Client) begin(key string) {
	c.mu.Lock()
	c.pending[key]++
	c.mu.Unlock()
}

func (c *Client) end(key string) {
	c.mu.Lock()
	if c.pending[key]--; c.pending[key] <= 0 {
		delete(c.pending, key)
	}
	c.mu.Unlock()
}

func (c *Client) publish(ev Event) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
