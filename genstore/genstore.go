// Package genstore keeps per-key generation counters for the response cache.
// A stored response is served only while the generation it was written at is
// still current; bumping the generation invalidates it without touching the
// byte provider.
package genstore

import (
	"context"
	"time"
)

// GenStore is safe for concurrent use. Keys are response cache storage keys.
type GenStore interface {
	// Unknown keys are at generation 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump returns the incremented generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup forgets keys last bumped more than retention ago; they read as 0 again.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
