package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// MutateOptions describes one optimistic mutation of a cached read-model.
type MutateOptions[T any] struct {
	// Synthesize builds a snapshot when nothing is cached. Optional.
	Synthesize func() T
	// Optimistic derives the value shown while Call is in flight.
	Optimistic func(snapshot T) T
	// Call performs the remote mutation and returns the authoritative value.
	Call func(ctx context.Context) (T, error)
	// Refetch reconciles the key with the server after a failed Call. Optional.
	Refetch func(ctx context.Context) (T, error)
	// Dependents are invalidated after a successful Call.
	Dependents []string
}

// Mutate applies an optimistic update to key.
//
//  1. The current entry is snapshotted (or synthesized).
//  2. The optimistic value replaces it immediately.
//  3. Call runs.
//  4. On success the authoritative value replaces the optimistic one and the
//     dependents are invalidated.
//  5. On failure the snapshot is restored and Refetch, if set, reconciles the
//     key. If Refetch fails too the key is marked out of date and the returned
//     error wraps ErrOutOfDate as well as the Call error.
func Mutate[T any](ctx context.Context, c *Client, key string, opts MutateOptions[T]) (T, error) {
	var zero T
	if opts.Call == nil || opts.Optimistic == nil {
		panic("cache: Mutate requires Call and Optimistic")
	}

	snapEntry, existed, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, err
	}

	var snapshot T
	switch {
	case existed:
		if snapshot, err = decode[T](snapEntry.Value); err != nil {
			return zero, err
		}
	case opts.Synthesize != nil:
		snapshot = opts.Synthesize()
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return zero, errors.Join(ErrEncodeEntry, err)
		}
		snapEntry = Entry{Value: raw, FetchedAt: c.now(), Stale: true}
		existed = true
	}

	raw, err := json.Marshal(opts.Optimistic(snapshot))
	if err != nil {
		return zero, errors.Join(ErrEncodeEntry, err)
	}

	c.begin(key)
	defer c.end(key)

	if _, err := c.write(ctx, key, raw, writeAlways, 0); err != nil {
		return zero, err
	}

	result, callErr := opts.Call(ctx)
	if callErr == nil {
		if err := Put(ctx, c, key, result); err != nil {
			return zero, err
		}
		if err := c.Invalidate(ctx, opts.Dependents...); err != nil {
			c.log.LogAttrs(ctx, slog.LevelWarn, "failed to invalidate dependents",
				logger.CacheKey(key),
				logger.Error(err),
			)
		}
		return result, nil
	}

	if err := c.restore(ctx, key, snapEntry, existed); err != nil {
		return zero, errors.Join(callErr, err)
	}

	if opts.Refetch == nil {
		return zero, callErr
	}

	version := c.Version(key)
	fresh, refetchErr := opts.Refetch(ctx)
	if refetchErr != nil {
		c.log.LogAttrs(ctx, slog.LevelWarn, "reconciling fetch after rollback failed",
			logger.CacheKey(key),
			logger.Error(refetchErr),
		)
		if err := c.MarkOutOfDate(ctx, key); err != nil {
			return zero, errors.Join(callErr, ErrOutOfDate, err)
		}
		return zero, errors.Join(callErr, ErrOutOfDate)
	}

	if raw, err := json.Marshal(fresh); err == nil {
		if _, err := c.write(ctx, key, raw, writeIfUnchanged, version); err != nil {
			return zero, errors.Join(callErr, err)
		}
	}
	return zero, callErr
}
