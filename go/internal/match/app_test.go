package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/sideline/go/internal/match/codec"
	"github.com/mcdev12/sideline/go/internal/match/persistence"
	"github.com/mcdev12/sideline/go/internal/match/remote"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

var t0 = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	app   *App
	clock *clockwork.FakeClock
	kv    *persistence.MemoryKV
	repo  *persistence.Repository
	saver *persistence.Saver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	return newFixtureWithSaverClock(t, clock, clock)
}

// newFixtureWithSaverClock lets the saver run on its own clock so its timers
// do not count as waiters on the app clock.
func newFixtureWithSaverClock(t *testing.T, clock, saverClock *clockwork.FakeClock) *fixture {
	t.Helper()
	kv := persistence.NewMemoryKV(0)
	repo := persistence.NewRepository(kv)
	saver := persistence.NewSaver(repo, saverClock, 0)
	app := NewApp(context.Background(), repo, saver, clock)
	return &fixture{app: app, clock: clock, kv: kv, repo: repo, saver: saver}
}

// connect attaches a transactional engine for uid on store.
func (f *fixture) connect(t *testing.T, store remote.Store, uid string, anonymous bool) *remote.Engine {
	t.Helper()
	cfg := remote.DefaultConfig()
	cfg.RetryDelay = 0
	e := remote.NewEngine(store, remote.Identity{UID: uid, Anonymous: anonymous}, f.app.ApplyRemote,
		remote.WithConfig(cfg), remote.WithClock(f.clock))
	f.app.SetEngine(e)
	require.NoError(t, f.app.Connect(context.Background(), "final-2026"))
	t.Cleanup(e.Disconnect)
	return e
}

// gatedEngine holds its first TxnState caller after the commit until release
// is closed.
type gatedEngine struct {
	*remote.Engine
	committed chan struct{}
	release   chan struct{}
	once      sync.Once
}

func (g *gatedEngine) TxnState(ctx context.Context, fn func(st *state.State) error) (remote.Commit, error) {
	c, err := g.Engine.TxnState(ctx, fn)
	g.once.Do(func() {
		close(g.committed)
		<-g.release
	})
	return c, err
}

// connectGated is connect with the engine wrapped in a gatedEngine.
func (f *fixture) connectGated(t *testing.T, store remote.Store, uid string) *gatedEngine {
	t.Helper()
	cfg := remote.DefaultConfig()
	cfg.RetryDelay = 0
	e := remote.NewEngine(store, remote.Identity{UID: uid}, f.app.ApplyRemote,
		remote.WithConfig(cfg), remote.WithClock(f.clock))
	g := &gatedEngine{Engine: e, committed: make(chan struct{}), release: make(chan struct{})}
	f.app.SetEngine(g)
	require.NoError(t, f.app.Connect(context.Background(), "final-2026"))
	t.Cleanup(e.Disconnect)
	return g
}

func remoteSnapshot(t *testing.T, store remote.Store) state.State {
	t.Helper()
	entry, err := store.Get(context.Background(), remote.StateKey("final-2026"))
	require.NoError(t, err)
	st, err := codec.Decode(entry.Value)
	require.NoError(t, err)
	return st
}

func TestApp_LocalMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.Equal(t, state.Default(), f.app.State())

	st, err := f.app.StartClock(ctx)
	require.NoError(t, err)
	assert.True(t, st.MainClock.Running)

	f.clock.Advance(10 * time.Second)
	st, err = f.app.PauseClock(ctx)
	require.NoError(t, err)
	assert.False(t, st.MainClock.Running)
	assert.Equal(t, state.DefaultSegmentLengthSeconds-10, st.MainClock.SecondsRemaining)

	st, err = f.app.AddScore(ctx, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Teams[0].Score)

	st, err = f.app.AdvancePlay(ctx, state.NormalPlay)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Teams[0].Downs)

	st, err = f.app.RecordTurnover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ActiveTeam)

	_, err = f.app.AddScore(ctx, 5, 1)
	assert.ErrorIs(t, err, state.ErrInvalidTeam)
	_, err = f.app.AdjustTeam(ctx, "bogus", 0, 1)
	assert.Error(t, err)

	st, err = f.app.AdjustTeam(ctx, "timeouts", 1, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Teams[1].TimeoutsRemaining)
}

func TestApp_FailedMutationLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.app.AdjustTeam(ctx, "timeouts", 0, -3)
	require.NoError(t, err)
	before := f.app.State()

	var notified int
	f.app.Subscribe(func(state.State) { notified++ })

	st, err := f.app.StartTimeout(ctx, 0)
	assert.ErrorIs(t, err, state.ErrNoTimeoutsRemaining)
	assert.Equal(t, before, st)
	assert.Equal(t, before, f.app.State())
	assert.Zero(t, notified)
}

func TestApp_ScoreboardIsReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.app.SetViewMode(ctx, persistence.ViewModeScoreboard))
	assert.Equal(t, persistence.ViewModeScoreboard, f.repo.LoadViewMode(ctx))

	_, err := f.app.StartClock(ctx)
	assert.ErrorIs(t, err, ErrReadOnlyView)
	_, err = f.app.AddScore(ctx, 0, 1)
	assert.ErrorIs(t, err, ErrReadOnlyView)
	assert.Equal(t, state.Default(), f.app.State())

	require.NoError(t, f.app.SetViewMode(ctx, persistence.ViewModeRef))
	_, err = f.app.StartClock(ctx)
	assert.NoError(t, err)
}

func TestApp_SavesDebounced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.app.AddScore(ctx, 1, 1)
		require.NoError(t, err)
	}
	assert.Zero(t, f.kv.Writes(persistence.StateKey))

	f.clock.Advance(persistence.DefaultSaveDelay)
	require.Eventually(t, func() bool { return f.kv.Writes(persistence.StateKey) == 1 }, time.Second, 5*time.Millisecond)

	// A fresh app restores what was saved.
	restored := NewApp(ctx, f.repo, f.saver, f.clock)
	assert.Equal(t, 3, restored.State().Teams[1].Score)
}

func TestApp_Tick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var mu sync.Mutex
	var seen []int
	f.app.Subscribe(func(st state.State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st.MainClock.SecondsRemaining)
	})

	_, err := f.app.SetMainClockSeconds(ctx, 3)
	require.NoError(t, err)
	_, err = f.app.StartClock(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	assert.True(t, f.app.Tick(f.clock.Now()))
	assert.Equal(t, 2, f.app.State().MainClock.SecondsRemaining)
	f.clock.Advance(500 * time.Millisecond)
	assert.False(t, f.app.Tick(f.clock.Now()))

	f.clock.Advance(3500 * time.Millisecond)
	assert.True(t, f.app.Tick(f.clock.Now()))
	st := f.app.State()
	assert.False(t, st.MainClock.Running)
	assert.Zero(t, st.MainClock.SecondsRemaining)
	assert.Nil(t, st.MainClock.Anchor)

	// Idle ticks are silent.
	mu.Lock()
	n := len(seen)
	mu.Unlock()
	f.clock.Advance(time.Second)
	assert.False(t, f.app.Tick(f.clock.Now()))
	mu.Lock()
	assert.Len(t, seen, n)
	mu.Unlock()
}

func TestApp_StateReconcilesOnRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.app.StartClock(ctx)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	st := f.app.State()
	assert.True(t, st.MainClock.Running)
	assert.Equal(t, state.DefaultSegmentLengthSeconds-10, st.MainClock.SecondsRemaining)

	_, err = f.app.StartTimeout(ctx, 0)
	require.NoError(t, err)
	f.clock.Advance(state.TimeoutDurationSeconds * time.Second)
	st = f.app.State()
	assert.False(t, st.TimeoutClock.Running)
	assert.Zero(t, st.TimeoutClock.SecondsRemaining)
	assert.Nil(t, st.TimeoutClock.TeamIndex)
}

func TestApp_RunTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixtureWithSaverClock(t, clockwork.NewFakeClockAt(t0), clockwork.NewFakeClock())

	done := make(chan error, 1)
	go func() { done <- f.app.RunTicker(ctx, time.Second) }()

	_, err := f.app.StartClock(ctx)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
		f.clock.Advance(time.Second)
		want := state.DefaultSegmentLengthSeconds - i
		require.Eventually(t, func() bool {
			return f.app.State().MainClock.SecondsRemaining == want
		}, time.Second, 5*time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not stop")
	}
}

func TestApp_RemoteWriter(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()

	ref := newFixture(t)
	ref.connect(t, store, "ref-a", false)
	assert.True(t, ref.app.SyncStatus().CanWrite)

	cfg := ref.repo.LoadRemoteConfig(ctx)
	require.NotNil(t, cfg)
	assert.Equal(t, "final-2026", cfg.Game)

	st, err := ref.app.AddScore(ctx, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Teams[0].Score)
	assert.Equal(t, 6, remoteSnapshot(t, store).Teams[0].Score)

	_, err = ref.app.StartTimeout(ctx, 1)
	require.NoError(t, err)
	remoteSt := remoteSnapshot(t, store)
	assert.True(t, remoteSt.TimeoutClock.Running)
	assert.Equal(t, state.DefaultTimeouts-1, remoteSt.Teams[1].TimeoutsRemaining)

	// A second referee's commits reach the first through the watch.
	other := newFixture(t)
	other.connect(t, store, "ref-b", false)
	_, err = other.app.AddScore(ctx, 0, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ref.app.State().Teams[0].Score == 7
	}, 2*time.Second, 5*time.Millisecond)
}

func TestApp_LateCommitDoesNotOverwriteNewerMerge(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()

	ref := newFixture(t)
	gate := ref.connectGated(t, store, "ref-a")
	other := newFixture(t)
	other.connect(t, store, "ref-b", false)

	done := make(chan error, 1)
	go func() {
		_, err := ref.app.SetTeamName(ctx, 0, "Alpha")
		done <- err
	}()
	select {
	case <-gate.committed:
	case <-time.After(2 * time.Second):
		t.Fatal("first commit did not happen")
	}

	// A newer commit from another referee is merged while the first
	// commit has not been installed yet.
	_, err := other.app.SetTeamName(ctx, 1, "Bravo")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return ref.app.State().Teams[1].Name == "Bravo"
	}, 2*time.Second, 5*time.Millisecond)

	close(gate.release)
	require.NoError(t, <-done)

	remoteSt := remoteSnapshot(t, store)
	assert.Equal(t, "Alpha", remoteSt.Teams[0].Name)
	assert.Equal(t, "Bravo", remoteSt.Teams[1].Name)

	st := ref.app.State()
	assert.Equal(t, "Alpha", st.Teams[0].Name)
	assert.Equal(t, "Bravo", st.Teams[1].Name)
}

func TestApp_ApplyRemoteIgnoresOlderRevisions(t *testing.T) {
	f := newFixture(t)

	newer := state.Default()
	newer.Teams[0].Score = 9
	f.app.ApplyRemote(newer, 5)

	older := state.Default()
	older.Teams[0].Score = 2
	f.app.ApplyRemote(older, 4)
	assert.Equal(t, 9, f.app.State().Teams[0].Score)

	f.app.ApplyRemote(older, 6)
	assert.Equal(t, 2, f.app.State().Teams[0].Score)
}

func TestApp_ViewerMutatesLocally(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()

	writer := newFixture(t)
	writer.connect(t, store, "ref-a", false)

	viewer := newFixture(t)
	viewer.connect(t, store, "anon-1", true)
	assert.False(t, viewer.app.SyncStatus().CanWrite)

	before := remoteSnapshot(t, store)
	st, err := viewer.app.AddScore(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Teams[1].Score)
	assert.Equal(t, before, remoteSnapshot(t, store))
}

func TestApp_ConnectWithoutEngine(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.app.Connect(context.Background(), "final-2026"), ErrSyncUnavailable)
	assert.Equal(t, "Offline", f.app.SyncStatus().Describe())
}
