package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sideline/go/internal/match/state"
)

// DefaultSaveDelay coalesces bursts of mutations into one write.
const DefaultSaveDelay = 400 * time.Millisecond

// Saver debounces snapshot writes: each Schedule restarts the delay, and only
// the latest state is written when it elapses.
type Saver struct {
	repo    *Repository
	clock   clockwork.Clock
	delay   time.Duration
	timeout time.Duration

	mu      sync.Mutex
	timer   clockwork.Timer
	pending *state.State
	saves   int
}

// NewSaver creates a saver writing through repo.
func NewSaver(repo *Repository, clock clockwork.Clock, delay time.Duration) *Saver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &Saver{
		repo:    repo,
		clock:   clock,
		delay:   delay,
		timeout: 5 * time.Second,
	}
}

// Schedule queues st to be written once no further Schedule arrives for the
// save delay.
func (s *Saver) Schedule(st state.State) {
	snapshot := st.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &snapshot
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.delay, s.fire)
}

func (s *Saver) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.Flush(ctx)
}

// Flush writes any pending state immediately and cancels the timer.
func (s *Saver) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if pending == nil {
		return
	}

	outcome := s.repo.SaveState(ctx, *pending)

	s.mu.Lock()
	s.saves++
	s.mu.Unlock()

	log.Debug().Str("encoding", outcome.String()).Msg("match snapshot saved")
}

// Cancel drops any pending write without performing it.
func (s *Saver) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}

// Saves returns how many writes the saver has performed.
func (s *Saver) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
