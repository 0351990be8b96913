// Package renewal reads and toggles subscription auto-renewal through the
// active payment provider.
//
// Reads are cached per (provider, subscription) and served without a network
// call while younger than the stale time. Writes are optimistic: the cache
// shows the requested state immediately, the provider call runs, and on
// failure the previous value is restored and re-fetched. A failed re-fetch
// leaves the entry flagged out of date rather than asserting either value.
package renewal
