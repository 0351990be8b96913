package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Loader fetches the authoritative value of a read-model.
type Loader[T any] func(ctx context.Context) (T, error)

// Peek returns the cached value for key without fetching.
func Peek[T any](ctx context.Context, c *Client, key string) (T, Entry, bool, error) {
	var zero T
	e, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return zero, e, false, err
	}
	v, err := decode[T](e.Value)
	if err != nil {
		return zero, e, false, err
	}
	return v, e, true, nil
}

// Put replaces the cached value for key.
func Put[T any](ctx context.Context, c *Client, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Join(ErrEncodeEntry, err)
	}
	_, err = c.write(ctx, key, raw, writeAlways, 0)
	return err
}

// Fetch returns the cached value when it is younger than staleTime and not
// invalidated; otherwise it calls load and caches the result. Concurrent
// fetches of the same key share one load. While an optimistic mutation of
// the key is pending the cached value is returned as is, and a load result is
// discarded if the key was written while the load was in flight; the newer
// cached value is returned instead. A caller whose ctx ends stops waiting
// without failing the others sharing the load.
func Fetch[T any](ctx context.Context, c *Client, key string, staleTime time.Duration, load Loader[T]) (T, error) {
	var zero T

	if v, e, ok, err := Peek[T](ctx, c, key); err == nil && ok && e.Fresh(c.now(), staleTime) {
		return v, nil
	} else if err != nil {
		c.log.LogAttrs(ctx, slog.LevelWarn, "ignoring unreadable cache entry",
			logger.CacheKey(key),
			logger.Error(err),
		)
	}

	// The shared load outlives any single caller; each caller still stops
	// waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		ctx := shared
		if c.Pending(key) {
			if e, ok, err := c.store.Get(ctx, key); err == nil && ok {
				return []byte(e.Value), nil
			}
		}
		version := c.Version(key)

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Join(ErrEncodeEntry, err)
		}

		written, err := c.write(ctx, key, raw, writeIfIdle, version)
		if err != nil {
			return nil, err
		}
		if written {
			return raw, nil
		}

		c.log.LogAttrs(ctx, slog.LevelDebug, "discarding refresh overtaken by a newer write",
			logger.CacheKey(key),
		)
		e, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return raw, nil
		}
		return []byte(e.Value), nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return decode[T](res.Val.([]byte))
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func decode[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errors.Join(ErrDecodeEntry, err)
	}
	return v, nil
}
