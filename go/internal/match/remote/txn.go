package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sideline/go/internal/match/codec"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

// casFunc computes the next stored value from the current one. exists is
// false when the key has no value. It may be called once per attempt and
// must not have side effects.
type casFunc func(current []byte, exists bool) ([]byte, error)

// compareAndSwap runs the read, apply, conditional write cycle on key until it
// commits or MaxRetries conflicts have been seen.
func (e *Engine) compareAndSwap(ctx context.Context, key string, fn casFunc) (uint64, error) {
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 && e.config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-e.clock.After(e.config.RetryDelay * time.Duration(attempt)):
			}
		}

		var (
			current  []byte
			revision uint64
			exists   bool
		)
		entry, err := e.store.Get(ctx, key)
		switch {
		case err == nil:
			current, revision, exists = entry.Value, entry.Revision, true
		case errors.Is(err, ErrKeyNotFound):
		default:
			return 0, fmt.Errorf("read %s: %w", key, err)
		}

		next, err := fn(current, exists)
		if err != nil {
			return 0, err
		}

		var committed uint64
		if exists {
			committed, err = e.store.Update(ctx, key, next, revision)
		} else {
			committed, err = e.store.Create(ctx, key, next)
		}
		if err == nil {
			return committed, nil
		}
		if errors.Is(err, ErrRevisionMismatch) || errors.Is(err, ErrKeyExists) {
			log.Debug().Str("key", key).Int("attempt", attempt).Msg("transaction conflict, retrying")
			continue
		}
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	return 0, fmt.Errorf("%s: %w", key, ErrTransactionConflict)
}

// writerMatch returns the match this device may write to, or
// ErrWriterIneligible.
func (e *Engine) writerMatch() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusConnected || !e.canWrite {
		return "", ErrWriterIneligible
	}
	return e.matchID, nil
}

// currentState inflates a stored snapshot, falling back to defaults.
func currentState(current []byte, exists bool) state.State {
	if !exists {
		return state.Default()
	}
	st, err := codec.Decode(current)
	if err != nil {
		return state.Default()
	}
	return st
}

// TxnState applies fn to the remote snapshot inside a compare-and-swap
// transaction and returns the committed state and revision.
func (e *Engine) TxnState(ctx context.Context, fn func(st *state.State) error) (Commit, error) {
	matchID, err := e.writerMatch()
	if err != nil {
		return Commit{}, err
	}

	var committed state.State
	revision, err := e.compareAndSwap(ctx, StateKey(matchID), func(current []byte, exists bool) ([]byte, error) {
		st := currentState(current, exists)
		if err := fn(&st); err != nil {
			return nil, err
		}
		committed = codec.Normalize(st)
		return codec.Marshal(committed)
	})
	if err != nil {
		e.noteTxnError(err)
		return Commit{}, err
	}

	e.commitSucceeded(revision)
	e.recordCommit(ctx, matchID)
	return Commit{State: committed, Revision: revision}, nil
}

// TxnField applies fn to one value of the remote snapshot, addressed by a
// slash-separated path such as "teams/0/score", inside a compare-and-swap
// transaction. The result is clamped like any other snapshot and the
// committed state and revision are returned.
func (e *Engine) TxnField(ctx context.Context, path string, fn func(current any) any) (Commit, error) {
	matchID, err := e.writerMatch()
	if err != nil {
		return Commit{}, err
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return Commit{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	var committed state.State
	revision, err := e.compareAndSwap(ctx, StateKey(matchID), func(current []byte, exists bool) ([]byte, error) {
		doc, err := codec.ToMap(currentState(current, exists))
		if err != nil {
			return nil, err
		}
		if err := updatePath(doc, segments, fn); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPath, path, err)
		}
		committed = codec.Inflate(doc)
		return codec.Marshal(committed)
	})
	if err != nil {
		e.noteTxnError(err)
		return Commit{}, err
	}

	e.commitSucceeded(revision)
	e.recordCommit(ctx, matchID)
	return Commit{State: committed, Revision: revision}, nil
}

// commitSucceeded marks revision as seen and clears a previous transaction
// error.
func (e *Engine) commitSucceeded(revision uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if revision > e.seen {
		e.seen = revision
	}
	if e.status == StatusConnected {
		e.lastErr = ""
	}
}

// noteTxnError surfaces exhausted retries in the status line without
// dropping the connection.
func (e *Engine) noteTxnError(err error) {
	if !errors.Is(err, ErrTransactionConflict) {
		return
	}
	e.mu.Lock()
	e.lastErr = err.Error()
	e.mu.Unlock()
	log.Error().Err(err).Msg("transaction failed")
}

// updatePath replaces the value at segments within doc with fn(old).
func updatePath(doc map[string]any, segments []string, fn func(any) any) error {
	var node any = doc
	for i, seg := range segments {
		last := i == len(segments)-1
		switch n := node.(type) {
		case map[string]any:
			if last {
				n[seg] = normalizeJSON(fn(n[seg]))
				return nil
			}
			next, ok := n[seg]
			if !ok {
				return fmt.Errorf("no field %q", seg)
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n) {
				return fmt.Errorf("bad index %q", seg)
			}
			if last {
				n[idx] = normalizeJSON(fn(n[idx]))
				return nil
			}
			node = n[idx]
		default:
			return fmt.Errorf("cannot descend into %T at %q", node, seg)
		}
	}
	return nil
}

// normalizeJSON converts v to the shapes encoding/json produces so the
// codec sees the same types it would after a round trip.
func normalizeJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
