// Package match ties the match state, its local persistence and remote sync
// together behind one serialized entry point.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sideline/go/internal/match/persistence"
	"github.com/mcdev12/sideline/go/internal/match/remote"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

// Listener is called with a copy of the state after every change.
type Listener func(st state.State)

// Engine is what the App needs from the sync engine.
type Engine interface {
	Connect(ctx context.Context, matchID string, local state.State) error
	Disconnect()
	CanWrite() bool
	UseTransactions() bool
	TxnState(ctx context.Context, fn func(st *state.State) error) (remote.Commit, error)
	TxnField(ctx context.Context, path string, fn func(current any) any) (remote.Commit, error)
	SchedulePush(st state.State)
	Info() remote.StatusInfo
}

// App owns the single match state of this device.
type App struct {
	repo   *persistence.Repository
	saver  *persistence.Saver
	clock  clockwork.Clock
	engine Engine

	// txnMu keeps at most one remote transaction in flight.
	txnMu sync.Mutex

	mu       sync.Mutex
	st       state.State
	viewMode persistence.ViewMode
	// revision is the newest remote revision installed into st.
	revision uint64

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int

	wakeCh chan struct{}
}

// NewApp loads the stored match and view mode.
func NewApp(ctx context.Context, repo *persistence.Repository, saver *persistence.Saver, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	st, found := repo.LoadState(ctx)
	state.ReconcileAll(clock.Now(), &st)
	mode := repo.LoadViewMode(ctx)

	log.Info().
		Bool("restored", found).
		Str("view_mode", string(mode)).
		Msg("match loaded")

	return &App{
		repo:      repo,
		saver:     saver,
		clock:     clock,
		st:        st,
		viewMode:  mode,
		listeners: make(map[int]Listener),
		wakeCh:    make(chan struct{}, 1),
	}
}

// SetEngine attaches the sync engine. The engine's merge callback should be
// ApplyRemote.
func (a *App) SetEngine(e Engine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine = e
}

// State returns a copy of the current state with its countdowns reconciled
// against the clock.
func (a *App) State() state.State {
	a.mu.Lock()
	st := a.st.Clone()
	a.mu.Unlock()
	state.ReconcileAll(a.clock.Now(), &st)
	return st
}

// ViewMode returns the current view mode.
func (a *App) ViewMode() persistence.ViewMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewMode
}

// SyncStatus returns the sync engine status, or an idle status without one.
func (a *App) SyncStatus() remote.StatusInfo {
	e := a.syncEngine()
	if e == nil {
		return remote.StatusInfo{Status: remote.StatusIdle, State: remote.StatusIdle.String()}
	}
	return e.Info()
}

// Subscribe registers l and returns a function that removes it.
func (a *App) Subscribe(l Listener) func() {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = l
	return func() {
		a.listenersMu.Lock()
		defer a.listenersMu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *App) notify(st state.State) {
	a.listenersMu.RLock()
	defer a.listenersMu.RUnlock()
	for _, l := range a.listeners {
		l(st.Clone())
	}
}

func (a *App) syncEngine() Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine
}

// Connect stores matchID and attaches the engine to it. An empty matchID
// clears the stored configuration and leaves the engine idle.
func (a *App) Connect(ctx context.Context, matchID string) error {
	e := a.syncEngine()
	if e == nil {
		return ErrSyncUnavailable
	}

	if matchID == "" {
		if err := a.repo.ClearRemoteConfig(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to clear remote config")
		}
	} else if err := a.repo.SaveRemoteConfig(ctx, persistence.RemoteConfig{Game: matchID}); err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("failed to save remote config")
	}

	a.mu.Lock()
	a.revision = 0
	a.mu.Unlock()
	return e.Connect(ctx, matchID, a.State())
}

// Disconnect detaches from the remote match. Local state is kept.
func (a *App) Disconnect() {
	if e := a.syncEngine(); e != nil {
		e.Disconnect()
	}
}

// ApplyRemote replaces local state with an inbound snapshot read at
// revision. Snapshots older than the installed revision are ignored.
func (a *App) ApplyRemote(st state.State, revision uint64) {
	if _, ok := a.install(st, revision); !ok {
		log.Debug().Uint64("revision", revision).Msg("skipping superseded remote snapshot")
	}
}

// Tick reconciles every countdown against now. It never writes remotely.
// It reports whether any countdown changed.
func (a *App) Tick(now time.Time) bool {
	a.mu.Lock()
	wasRunning := a.st.AnyRunning()
	changed := state.ReconcileAll(now, &a.st)
	snapshot := a.st.Clone()
	a.mu.Unlock()

	if changed {
		a.saver.Schedule(snapshot)
	}
	if changed || wasRunning {
		a.notify(snapshot)
	}
	return changed
}

// SetViewMode switches between the referee controls and the scoreboard.
func (a *App) SetViewMode(ctx context.Context, mode persistence.ViewMode) error {
	if err := a.repo.SaveViewMode(ctx, mode); err != nil {
		return err
	}
	a.mu.Lock()
	a.viewMode = a.repo.LoadViewMode(ctx)
	snapshot := a.st.Clone()
	a.mu.Unlock()

	a.notify(snapshot)
	return nil
}

// Close writes any pending save and disconnects.
func (a *App) Close(ctx context.Context) {
	a.Disconnect()
	a.saver.Flush(ctx)
}

// install makes the remote snapshot st, read at revision, the current state
// and fans the change out. It reports false and returns the current state
// when a newer revision is already installed.
func (a *App) install(st state.State, revision uint64) (state.State, bool) {
	a.mu.Lock()
	if revision < a.revision {
		current := a.st.Clone()
		a.mu.Unlock()
		state.ReconcileAll(a.clock.Now(), &current)
		return current, false
	}
	a.revision = revision
	state.ReconcileAll(a.clock.Now(), &st)
	a.st = st
	snapshot := a.st.Clone()
	e := a.engine
	a.mu.Unlock()

	a.publish(snapshot, e)
	return snapshot, true
}

// commit installs the outcome of a remote transaction.
func (a *App) commit(c remote.Commit) state.State {
	st, _ := a.install(c.State, c.Revision)
	return st
}

// publish saves, pushes and announces a new state.
func (a *App) publish(snapshot state.State, e Engine) {
	a.saver.Schedule(snapshot)
	if e != nil {
		e.SchedulePush(snapshot)
	}
	a.notify(snapshot)
	a.wake()
}

// wake nudges the ticker in case a countdown just started.
func (a *App) wake() {
	select {
	case a.wakeCh <- struct{}{}:
	default:
	}
}

// remoteWriter returns the engine when mutations should go through remote
// transactions.
func (a *App) remoteWriter() Engine {
	e := a.syncEngine()
	if e == nil || !e.UseTransactions() || !e.CanWrite() {
		return nil
	}
	return e
}

// Mutate applies fn to the match. A connected writer commits it through a
// remote transaction and adopts the committed state; otherwise it is applied
// to the local copy. A failed mutation leaves the state unchanged.
func (a *App) Mutate(ctx context.Context, action string, fn state.Mutation) (state.State, error) {
	if a.ViewMode() == persistence.ViewModeScoreboard {
		return a.State(), ErrReadOnlyView
	}
	now := a.clock.Now()
	logger := log.With().Str("action", action).Logger()

	if e := a.remoteWriter(); e != nil {
		a.txnMu.Lock()
		committed, err := e.TxnState(ctx, func(st *state.State) error {
			state.ReconcileAll(now, st)
			return fn(st, now)
		})
		if err == nil {
			st := a.commit(committed)
			a.txnMu.Unlock()
			logger.Debug().Uint64("revision", committed.Revision).Msg("committed remote mutation")
			return st, nil
		}
		a.txnMu.Unlock()

		switch {
		case errors.Is(err, remote.ErrWriterIneligible):
			logger.Warn().Msg("writer no longer eligible, applying locally")
		default:
			logger.Error().Err(err).Msg("remote mutation failed")
			return a.State(), fmt.Errorf("%s: %w", action, err)
		}
	}

	a.mu.Lock()
	next := a.st.Clone()
	state.ReconcileAll(now, &next)
	if err := fn(&next, now); err != nil {
		current := a.st.Clone()
		a.mu.Unlock()
		return current, fmt.Errorf("%s: %w", action, err)
	}
	a.st = next
	snapshot := next.Clone()
	e := a.engine
	a.mu.Unlock()

	a.publish(snapshot, e)
	return snapshot, nil
}

// mutateField applies fn to one snapshot field through a remote field
// transaction when this device is a connected writer, and falls back to
// local otherwise.
func (a *App) mutateField(ctx context.Context, action, path string, fn func(any) any, local state.Mutation) (state.State, error) {
	if a.ViewMode() == persistence.ViewModeScoreboard {
		return a.State(), ErrReadOnlyView
	}

	if e := a.remoteWriter(); e != nil {
		a.txnMu.Lock()
		committed, err := e.TxnField(ctx, path, fn)
		if err == nil {
			st := a.commit(committed)
			a.txnMu.Unlock()
			return st, nil
		}
		a.txnMu.Unlock()

		switch {
		case errors.Is(err, remote.ErrWriterIneligible):
			log.Warn().Str("action", action).Msg("writer no longer eligible, applying locally")
		default:
			log.Error().Err(err).Str("action", action).Msg("remote field mutation failed")
			return a.State(), fmt.Errorf("%s: %w", action, err)
		}
	}

	return a.Mutate(ctx, action, local)
}
