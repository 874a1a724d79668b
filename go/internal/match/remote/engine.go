// Package remote replicates a match through a shared revisioned store: writer
// membership, seeding, compare-and-swap transactions and inbound merges.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sideline/go/internal/match/codec"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

// Config tunes the engine.
type Config struct {
	// MaxRetries is how many times a conflicting transaction is retried.
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries.
	RetryDelay time.Duration
	// UseTransactions routes mutations through TxnState/TxnField. When false,
	// local changes are pushed whole with SchedulePush.
	UseTransactions bool
	// PushDelay debounces SchedulePush.
	PushDelay time.Duration
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      8,
		RetryDelay:      50 * time.Millisecond,
		UseTransactions: true,
		PushDelay:       250 * time.Millisecond,
	}
}

// Identity is the signed-in user of this device.
type Identity struct {
	UID       string
	Anonymous bool
}

// MergeFunc receives a remote snapshot that should replace local state,
// along with the store revision it was read at.
type MergeFunc func(st state.State, revision uint64)

// Commit is the outcome of a successful transaction.
type Commit struct {
	State    state.State
	Revision uint64
}

// Engine keeps one device in sync with one remote match document.
type Engine struct {
	store    Store
	clock    clockwork.Clock
	config   Config
	identity Identity
	onMerge  MergeFunc

	mu          sync.Mutex
	status      Status
	lastErr     string
	matchID     string
	canWrite    bool
	watcher     Watcher
	stopWatch   context.CancelFunc
	generation  uint64
	pushTimer   clockwork.Timer
	pendingPush *state.State
	// seen is the newest snapshot revision applied or committed locally.
	seen uint64

	applying atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for backoff and push debouncing.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithConfig overrides DefaultConfig.
func WithConfig(config Config) Option {
	return func(e *Engine) { e.config = config }
}

// NewEngine creates an idle engine. onMerge is invoked for every accepted
// inbound snapshot.
func NewEngine(store Store, identity Identity, onMerge MergeFunc, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		clock:    clockwork.NewRealClock(),
		config:   DefaultConfig(),
		identity: identity,
		onMerge:  onMerge,
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.config.MaxRetries < 0 {
		e.config.MaxRetries = 0
	}
	return e
}

// Info returns the current status.
func (e *Engine) Info() StatusInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return StatusInfo{
		Status:   e.status,
		State:    e.status.String(),
		MatchID:  e.matchID,
		CanWrite: e.canWrite,
		Err:      e.lastErr,
	}
}

// Describe renders the current status line.
func (e *Engine) Describe() string {
	return e.Info().Describe()
}

// Connected reports whether the engine holds a live subscription.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == StatusConnected
}

// CanWrite reports whether the device was verified as a writer on connect.
func (e *Engine) CanWrite() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == StatusConnected && e.canWrite
}

// UseTransactions reports whether mutations should go through TxnState and
// TxnField rather than SchedulePush.
func (e *Engine) UseTransactions() bool {
	return e.config.UseTransactions
}

// Applying reports whether an inbound snapshot is being merged.
func (e *Engine) Applying() bool {
	return e.applying.Load()
}

// Connect tears down any previous connection and attaches to matchID. local
// seeds the remote document when this device is a writer and none exists.
// An empty matchID leaves the engine idle.
func (e *Engine) Connect(ctx context.Context, matchID string, local state.State) error {
	e.Disconnect()

	if matchID == "" {
		e.setStatus(StatusIdle, "", false, "")
		return nil
	}
	if err := ValidateMatchID(matchID); err != nil {
		e.setStatus(StatusError, matchID, false, err.Error())
		return err
	}

	e.setStatus(StatusConnecting, matchID, false, "")
	logger := log.With().Str("match_id", matchID).Str("uid", e.identity.UID).Logger()

	if e.identity.UID == "" {
		e.setStatus(StatusError, matchID, false, ErrAuthRequired.Error())
		return ErrAuthRequired
	}

	if !e.identity.Anonymous {
		if err := e.JoinWriters(ctx, matchID); err != nil {
			logger.Warn().Err(err).Msg("failed to register as writer")
		}
	}

	canWrite, err := e.IsCurrentUserWriter(ctx, matchID)
	if err != nil {
		e.setStatus(StatusError, matchID, false, err.Error())
		return fmt.Errorf("check writer membership: %w", err)
	}

	if canWrite {
		if err := e.SeedIfMissing(ctx, matchID, local); err != nil {
			e.setStatus(StatusError, matchID, false, err.Error())
			return fmt.Errorf("seed match: %w", err)
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	w, err := e.store.Watch(watchCtx, StateKey(matchID))
	if err != nil {
		cancel()
		e.setStatus(StatusError, matchID, false, err.Error())
		return fmt.Errorf("subscribe: %w", err)
	}

	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.seen = 0
	e.watcher = w
	e.stopWatch = cancel
	e.status = StatusConnected
	e.matchID = matchID
	e.canWrite = canWrite
	e.lastErr = ""
	e.mu.Unlock()

	go e.watchLoop(w, gen)

	logger.Info().Bool("can_write", canWrite).Msg("connected to match")
	return nil
}

// Disconnect stops the subscription and cancels any pending push. Local
// state is not touched.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	w := e.watcher
	cancel := e.stopWatch
	e.watcher = nil
	e.stopWatch = nil
	e.generation++
	if e.pushTimer != nil {
		e.pushTimer.Stop()
		e.pushTimer = nil
	}
	e.pendingPush = nil
	wasConnected := e.status == StatusConnected
	e.canWrite = false
	e.status = StatusIdle
	e.lastErr = ""
	matchID := e.matchID
	e.mu.Unlock()

	if w != nil {
		if err := w.Stop(); err != nil {
			log.Warn().Err(err).Str("match_id", matchID).Msg("failed to stop watcher")
		}
	}
	if cancel != nil {
		cancel()
	}
	if wasConnected {
		log.Info().Str("match_id", matchID).Msg("disconnected from match")
	}
}

func (e *Engine) setStatus(status Status, matchID string, canWrite bool, errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	e.matchID = matchID
	e.canWrite = canWrite
	e.lastErr = errMsg
}

// JoinWriters registers this identity in the writer membership of matchID.
func (e *Engine) JoinWriters(ctx context.Context, matchID string) error {
	if e.identity.UID == "" || e.identity.Anonymous {
		return ErrAuthRequired
	}
	if _, err := e.store.Put(ctx, WriterKey(matchID, e.identity.UID), []byte("true")); err != nil {
		return fmt.Errorf("join writers: %w", err)
	}
	return nil
}

// LeaveWriters removes this identity from the writer membership of matchID.
func (e *Engine) LeaveWriters(ctx context.Context, matchID string) error {
	if e.identity.UID == "" {
		return ErrAuthRequired
	}
	if err := e.store.Delete(ctx, WriterKey(matchID, e.identity.UID)); err != nil {
		return fmt.Errorf("leave writers: %w", err)
	}

	e.mu.Lock()
	if e.matchID == matchID {
		e.canWrite = false
	}
	e.mu.Unlock()
	return nil
}

// IsCurrentUserWriter looks up this identity in the writer membership.
func (e *Engine) IsCurrentUserWriter(ctx context.Context, matchID string) (bool, error) {
	if e.identity.UID == "" || e.identity.Anonymous {
		return false, nil
	}
	entry, err := e.store.Get(ctx, WriterKey(matchID, e.identity.UID))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return string(entry.Value) == "true", nil
}

// SeedIfMissing writes local as the remote snapshot when none exists. Losing
// the race to another writer is not an error.
func (e *Engine) SeedIfMissing(ctx context.Context, matchID string, local state.State) error {
	data, err := codec.Marshal(local)
	if err != nil {
		return err
	}
	_, err = e.store.Create(ctx, StateKey(matchID), data)
	switch {
	case err == nil:
		log.Info().Str("match_id", matchID).Msg("seeded remote match")
		e.recordCommit(ctx, matchID)
		return nil
	case errors.Is(err, ErrKeyExists):
		return nil
	default:
		return err
	}
}

func (e *Engine) watchLoop(w Watcher, gen uint64) {
	for entry := range w.Updates() {
		e.mu.Lock()
		current := e.generation == gen
		stale := entry.Revision <= e.seen
		e.mu.Unlock()
		if !current || stale {
			continue
		}
		e.handleRemotePayload(entry)
	}
}

// handleRemotePayload merges an inbound snapshot. Malformed payloads are
// discarded and local state is kept.
func (e *Engine) handleRemotePayload(entry Entry) {
	if entry.Deleted || len(entry.Value) == 0 {
		return
	}
	st, err := codec.Decode(entry.Value)
	if err != nil {
		log.Warn().Err(err).Str("key", entry.Key).Uint64("revision", entry.Revision).Msg("discarding malformed remote snapshot")
		return
	}

	e.markSeen(entry.Revision)
	e.applying.Store(true)
	defer e.applying.Store(false)
	if e.onMerge != nil {
		e.onMerge(st, entry.Revision)
	}
}

// SchedulePush queues st to be written whole to the remote document after
// the push delay. It is a no-op while merging, when not connected, when this
// device is not a writer, or when transactions are in use.
func (e *Engine) SchedulePush(st state.State) {
	if e.applying.Load() || e.config.UseTransactions {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusConnected || !e.canWrite {
		return
	}

	snapshot := st.Clone()
	e.pendingPush = &snapshot
	if e.pushTimer != nil {
		e.pushTimer.Stop()
	}
	gen := e.generation
	e.pushTimer = e.clock.AfterFunc(e.config.PushDelay, func() { e.push(gen) })
}

func (e *Engine) push(gen uint64) {
	e.mu.Lock()
	if e.generation != gen || e.pendingPush == nil {
		e.mu.Unlock()
		return
	}
	st := *e.pendingPush
	e.pendingPush = nil
	e.pushTimer = nil
	matchID := e.matchID
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := codec.Marshal(st)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode push")
		return
	}
	revision, err := e.store.Put(ctx, StateKey(matchID), data)
	if err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to push match")
		return
	}
	e.markSeen(revision)
	e.recordCommit(ctx, matchID)
}

// markSeen records that local state already reflects revision, so the watch
// echo of it and anything older is skipped.
func (e *Engine) markSeen(revision uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if revision > e.seen {
		e.seen = revision
	}
}

// recordCommit updates the last-writer metadata. Failures are logged only.
func (e *Engine) recordCommit(ctx context.Context, matchID string) {
	if _, err := e.store.Put(ctx, LastWriterKey(matchID), []byte(e.identity.UID)); err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("failed to record last writer")
	}
	ms := strconv.FormatInt(e.clock.Now().UnixMilli(), 10)
	if _, err := e.store.Put(ctx, UpdatedAtKey(matchID), []byte(ms)); err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("failed to record update time")
	}
}
