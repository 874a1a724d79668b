package persistence

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/sideline/go/internal/match/codec"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

func sampleState() state.State {
	st := state.Default()
	st.Teams[0].Name = "Falcons"
	st.Teams[0].Score = 14
	st.Teams[1].Score = 7
	st.ActiveTeam = 1
	return st
}

func TestRepository_LoadState(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store returns default", func(t *testing.T) {
		repo := NewRepository(NewMemoryKV(0))
		st, ok := repo.LoadState(ctx)
		assert.False(t, ok)
		assert.Equal(t, state.Default(), st)
	})

	t.Run("reads current key", func(t *testing.T) {
		kv := NewMemoryKV(0)
		repo := NewRepository(kv)
		require.Equal(t, SavedFull, repo.SaveState(ctx, sampleState()))

		st, ok := repo.LoadState(ctx)
		require.True(t, ok)
		assert.Equal(t, "Falcons", st.Teams[0].Name)
		assert.Equal(t, 14, st.Teams[0].Score)
		assert.Equal(t, 1, st.ActiveTeam)
	})

	t.Run("migrates newest legacy key and removes it", func(t *testing.T) {
		kv := NewMemoryKV(0)
		require.NoError(t, kv.Set(ctx, "flag_football_touch_v9", `{"activeTeam":1,"teams":[{"name":"Old","score":3},{"name":"Other"}]}`))
		require.NoError(t, kv.Set(ctx, "flag_football_touch_v5", `{"a":0,"t":[{"n":"Older","s":1},{"n":"B"}]}`))

		repo := NewRepository(kv)
		st, ok := repo.LoadState(ctx)
		require.True(t, ok)
		assert.Equal(t, "Old", st.Teams[0].Name)
		assert.Equal(t, 3, st.Teams[0].Score)

		_, exists, err := kv.Get(ctx, "flag_football_touch_v9")
		require.NoError(t, err)
		assert.False(t, exists)

		raw, exists, err := kv.Get(ctx, StateKey)
		require.NoError(t, err)
		require.True(t, exists)
		migrated, err := codec.Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, st, migrated)
	})

	t.Run("unreadable current key falls back to default", func(t *testing.T) {
		kv := NewMemoryKV(0)
		require.NoError(t, kv.Set(ctx, StateKey, "not json"))
		st, ok := NewRepository(kv).LoadState(ctx)
		assert.False(t, ok)
		assert.Equal(t, state.Default(), st)
	})
}

func TestRepository_SaveState(t *testing.T) {
	ctx := context.Background()
	st := sampleState()

	full, err := codec.Marshal(st)
	require.NoError(t, err)
	compact, err := codec.MarshalCompact(st)
	require.NoError(t, err)
	require.Less(t, len(compact), len(full))

	tests := []struct {
		name     string
		maxBytes int
		want     SaveOutcome
	}{
		{name: "full encoding fits", maxBytes: len(full), want: SavedFull},
		{name: "falls back to compact", maxBytes: len(full) - 1, want: SavedCompact},
		{name: "drops when nothing fits", maxBytes: len(compact) - 1, want: Dropped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemoryKV(tt.maxBytes)
			repo := NewRepository(kv)

			// A stale value must not survive a dropped save.
			kv.data[StateKey] = "stale"

			assert.Equal(t, tt.want, repo.SaveState(ctx, st))

			raw, exists, err := kv.Get(ctx, StateKey)
			require.NoError(t, err)
			if tt.want == Dropped {
				assert.False(t, exists)
				return
			}
			require.True(t, exists)
			decoded, err := codec.Decode([]byte(raw))
			require.NoError(t, err)
			assert.Equal(t, codec.Normalize(st), decoded)
		})
	}
}

func TestRepository_ViewMode(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		stored string
		want   ViewMode
	}{
		{stored: "ref", want: ViewModeRef},
		{stored: "scoreboard", want: ViewModeScoreboard},
		{stored: "player", want: ViewModeScoreboard},
		{stored: "bogus", want: ViewModeRef},
	}

	for _, tt := range tests {
		t.Run(tt.stored, func(t *testing.T) {
			kv := NewMemoryKV(0)
			require.NoError(t, kv.Set(ctx, ViewModeKey, tt.stored))
			assert.Equal(t, tt.want, NewRepository(kv).LoadViewMode(ctx))
		})
	}

	t.Run("missing defaults to ref", func(t *testing.T) {
		assert.Equal(t, ViewModeRef, NewRepository(NewMemoryKV(0)).LoadViewMode(ctx))
	})

	t.Run("round trip", func(t *testing.T) {
		repo := NewRepository(NewMemoryKV(0))
		require.NoError(t, repo.SaveViewMode(ctx, ViewModeScoreboard))
		assert.Equal(t, ViewModeScoreboard, repo.LoadViewMode(ctx))
	})
}

func TestRepository_RemoteConfig(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryKV(0))

	assert.Nil(t, repo.LoadRemoteConfig(ctx))
	assert.Error(t, repo.SaveRemoteConfig(ctx, RemoteConfig{}))

	last := "2026-10-01T12:00:00Z"
	require.NoError(t, repo.SaveRemoteConfig(ctx, RemoteConfig{Game: "final-2026", LastKnown: &last}))

	cfg := repo.LoadRemoteConfig(ctx)
	require.NotNil(t, cfg)
	assert.Equal(t, "final-2026", cfg.Game)
	require.NotNil(t, cfg.LastKnown)
	assert.Equal(t, last, *cfg.LastKnown)

	require.NoError(t, repo.ClearRemoteConfig(ctx))
	assert.Nil(t, repo.LoadRemoteConfig(ctx))
}

func TestRepository_DeviceID(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryKV(0))

	first, err := repo.DeviceID(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := repo.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "match.db")

	kv, err := OpenSQLite(path, 64)
	require.NoError(t, err)

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "one"))
	require.NoError(t, kv.Set(ctx, "k", "two"))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", v)

	err = kv.Set(ctx, "k", strings.Repeat("x", 65))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, kv.Close())

	// Reopening applies migrations idempotently and keeps data.
	kv, err = OpenSQLite(path, 0)
	require.NoError(t, err)
	defer kv.Close()
	require.NoError(t, kv.Set(ctx, "persisted", "yes"))
	v, ok, err = kv.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "yes", v)
}

func TestSaver_Debounce(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	kv := NewMemoryKV(0)
	repo := NewRepository(kv)
	saver := NewSaver(repo, clock, 0)

	st := state.Default()
	for i := 1; i <= 5; i++ {
		st.Teams[0].Score = i
		saver.Schedule(st)
		clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, 0, saver.Saves())

	clock.Advance(DefaultSaveDelay)
	require.Eventually(t, func() bool { return saver.Saves() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, kv.Writes(StateKey))

	loaded, ok := repo.LoadState(ctx)
	require.True(t, ok)
	assert.Equal(t, 5, loaded.Teams[0].Score)
}

func TestSaver_FlushAndCancel(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	kv := NewMemoryKV(0)
	saver := NewSaver(NewRepository(kv), clock, time.Second)

	saver.Flush(ctx)
	assert.Equal(t, 0, saver.Saves())

	saver.Schedule(sampleState())
	saver.Flush(ctx)
	assert.Equal(t, 1, saver.Saves())

	// The timer was cancelled by Flush.
	clock.Advance(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, saver.Saves())

	saver.Schedule(sampleState())
	saver.Cancel()
	clock.Advance(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, saver.Saves())
	assert.Equal(t, 1, kv.Writes(StateKey))
}
