package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func running(seconds int, startedAt time.Time) Countdown {
	return Countdown{
		Running:          true,
		SecondsRemaining: seconds,
		Anchor:           &Anchor{StartedAtMs: startedAt.UnixMilli(), SecondsAtStart: seconds},
	}
}

func TestReconcileCountsDownFromAnchor(t *testing.T) {
	const n = 10
	for k := 0; k <= n+5; k++ {
		c := running(n, t0)
		Reconcile(t0.Add(time.Duration(k)*time.Second), &c)

		want := n - k
		if want < 0 {
			want = 0
		}
		assert.Equal(t, want, c.SecondsRemaining, "k=%d", k)
		if k >= n {
			assert.False(t, c.Running, "k=%d", k)
			assert.Nil(t, c.Anchor, "k=%d", k)
		} else {
			assert.True(t, c.Running, "k=%d", k)
			require.NotNil(t, c.Anchor)
			assert.GreaterOrEqual(t, c.Anchor.SecondsAtStart, c.SecondsRemaining)
		}
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		countdown   Countdown
		now         time.Time
		wantChanged bool
		wantRunning bool
		wantSeconds int
	}{
		{
			name:        "stopped countdown is untouched",
			countdown:   Countdown{SecondsRemaining: 42},
			now:         t0.Add(time.Hour),
			wantSeconds: 42,
		},
		{
			name:        "running without anchor is stopped",
			countdown:   Countdown{Running: true, SecondsRemaining: 30},
			now:         t0,
			wantChanged: true,
			wantSeconds: 30,
		},
		{
			name:        "running with zero start time is stopped",
			countdown:   Countdown{Running: true, SecondsRemaining: 30, Anchor: &Anchor{SecondsAtStart: 30}},
			now:         t0,
			wantChanged: true,
			wantSeconds: 30,
		},
		{
			name:        "sub-second elapsed does not tick",
			countdown:   running(30, t0),
			now:         t0.Add(999 * time.Millisecond),
			wantRunning: true,
			wantSeconds: 30,
		},
		{
			name:        "clock skew into the past counts as zero elapsed",
			countdown:   running(30, t0),
			now:         t0.Add(-5 * time.Second),
			wantRunning: true,
			wantSeconds: 30,
		},
		{
			name:        "long suspension expires the countdown",
			countdown:   running(30, t0),
			now:         t0.Add(10 * time.Minute),
			wantChanged: true,
			wantSeconds: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.countdown
			changed := Reconcile(tt.now, &c)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantRunning, c.Running)
			assert.Equal(t, tt.wantSeconds, c.SecondsRemaining)
			if !c.Running {
				assert.Nil(t, c.Anchor)
			}
		})
	}
}

func TestReconcileIsRepeatable(t *testing.T) {
	c := running(60, t0)
	now := t0.Add(15500 * time.Millisecond)

	assert.True(t, Reconcile(now, &c))
	assert.False(t, Reconcile(now, &c))
	assert.Equal(t, 45, c.SecondsRemaining)
	assert.Equal(t, 60, c.Anchor.SecondsAtStart)
}

func TestReconcileAllClearsExpiredTimeout(t *testing.T) {
	s := Default()
	require.NoError(t, s.StartTimeout(t0, 1))

	changed := ReconcileAll(t0.Add(31*time.Second), &s)

	assert.True(t, changed)
	assert.False(t, s.TimeoutClock.Running)
	assert.Zero(t, s.TimeoutClock.SecondsRemaining)
	assert.Nil(t, s.TimeoutClock.TeamIndex)
	assert.Nil(t, s.TimeoutClock.Anchor)
}
