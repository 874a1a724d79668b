// Package persistence keeps the match snapshot and small device preferences
// in durable local storage.
package persistence

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by a KV when a value does not fit.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// DefaultMaxValueBytes matches the per-origin budget of browser local storage.
const DefaultMaxValueBytes = 5 * 1024 * 1024

// KV is a durable string key-value store.
type KV interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, returning ErrQuotaExceeded when it does not fit.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
