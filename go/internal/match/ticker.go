package match

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is how often countdowns are reconciled while one runs.
const DefaultTickInterval = time.Second

// RunTicker reconciles countdowns every interval while any of them runs and
// sleeps otherwise. It returns when ctx is cancelled.
func (a *App) RunTicker(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	log.Info().Dur("interval", interval).Msg("match ticker started")

	for {
		if !a.anyRunning() {
			select {
			case <-ctx.Done():
				log.Info().Msg("match ticker shutting down")
				return nil
			case <-a.wakeCh:
				continue
			}
		}

		a.tickWhileRunning(ctx, interval)
		if ctx.Err() != nil {
			log.Info().Msg("match ticker shutting down")
			return nil
		}
	}
}

func (a *App) tickWhileRunning(ctx context.Context, interval time.Duration) {
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			a.Tick(now)
			if !a.anyRunning() {
				log.Debug().Msg("no countdown running, ticker idle")
				return
			}
		}
	}
}

func (a *App) anyRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.AnyRunning()
}
