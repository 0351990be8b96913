// Package cache keeps the client-side read-models of the billing flows
// (renewal status, subscription list, current-user subscription, billing
// summary) consistent across mutations.
//
// Records are stored as whole JSON documents in a Store (an in-memory LRU or
// Redis) together with bookkeeping: when the value was fetched, whether it was
// invalidated, whether a failed reconciliation left it out of date, and a
// version that increases on every write. Records are always replaced, never
// patched in place.
//
// The typed helpers Fetch, Peek and Put sit on top of a Client. Fetch returns
// fresh cached values without calling the loader, coalesces concurrent loads
// of the same key, and drops a load result when the key was written while the
// load was in flight, so a slow refresh can never clobber an optimistic value.
//
// Mutate implements optimistic updates with rollback:
//
//	status, err := cache.Mutate(ctx, c, key, cache.MutateOptions[Status]{
//		Synthesize: func() Status { return Status{AutoRenewal: !enabled} },
//		Optimistic: func(prev Status) Status { prev.AutoRenewal = enabled; return prev },
//		Call:       func(ctx context.Context) (Status, error) { return remote.Update(ctx, id, enabled) },
//		Refetch:    func(ctx context.Context) (Status, error) { return remote.Fetch(ctx, id) },
//		Dependents: cache.DependentsOf(userID),
//	})
//
// Readers between the optimistic write and the remote response observe the
// optimistic value; after a failure they observe the restored snapshot.
package cache
