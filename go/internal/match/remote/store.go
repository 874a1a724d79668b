package remote

import (
	"context"
	"fmt"
	"regexp"
)

// Entry is a stored value and the revision it was written at.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
	Deleted  bool
}

// Store is a revisioned key-value store with conditional writes.
type Store interface {
	// Get returns ErrKeyNotFound when key has no live value.
	Get(ctx context.Context, key string) (Entry, error)
	// Create writes value only if key has no live value, else ErrKeyExists.
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	// Update writes value only if key is still at revision, else
	// ErrRevisionMismatch.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	// Put writes value unconditionally.
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
	// Watch streams the current value of key, if any, and every later change.
	Watch(ctx context.Context, key string) (Watcher, error)
}

// Watcher delivers entries for a watched key until stopped.
type Watcher interface {
	Updates() <-chan Entry
	Stop() error
}

var matchIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateMatchID reports whether id can address a remote document.
func ValidateMatchID(id string) error {
	if id == "" {
		return ErrNotConfigured
	}
	if !matchIDPattern.MatchString(id) {
		return fmt.Errorf("invalid match id %q: use letters, digits, '-' or '_'", id)
	}
	return nil
}

// StateKey addresses the serialized snapshot of a match.
func StateKey(matchID string) string {
	return "games." + matchID + ".state"
}

// WriterKey addresses uid's entry in the writer membership set.
func WriterKey(matchID, uid string) string {
	return "games." + matchID + ".meta.writers." + uid
}

// LastWriterKey addresses the identity of the last committing writer.
func LastWriterKey(matchID string) string {
	return "games." + matchID + ".meta.lastWriter"
}

// UpdatedAtKey addresses the last commit time in unix milliseconds.
func UpdatedAtKey(matchID string) string {
	return "games." + matchID + ".meta.updatedAt"
}
