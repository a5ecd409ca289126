// Package storage defines the durable key-value contract persisted state
// flows through, plus the versioned envelope codec layered on top of it.
package storage

import "context"

// Raw is the minimal text key-value contract a persistence backend must
// provide. Methods take a context and may block: a synchronous backend
// returns immediately, an asynchronous one resolves its deferred work before
// returning, so callers drive both through one code path. No transactional
// guarantees are required of implementations.
type Raw interface {
	// Get returns the stored text for key. The boolean reports presence;
	// a missing key is not an error.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores text under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}
