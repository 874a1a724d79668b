package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sideline/go/internal/match/codec"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

// Storage keys.
const (
	StateKey        = "flag_football_touch_v10"
	ViewModeKey     = "flag_football_touch_view_mode"
	RemoteConfigKey = "flag_football_touch_remote_v1"
	DeviceKey       = "flag_football_touch_device"
)

// LegacyStateKeys are probed newest first when StateKey is absent.
var LegacyStateKeys = []string{
	"flag_football_touch_v9",
	"flag_football_touch_v8",
	"flag_football_touch_v7",
	"flag_football_touch_v6",
	"flag_football_touch_v5",
	"flag_football_touch_v4",
}

// SaveOutcome reports which encoding a save ended up writing.
type SaveOutcome int

const (
	SavedFull SaveOutcome = iota
	SavedCompact
	Dropped
)

func (o SaveOutcome) String() string {
	switch o {
	case SavedFull:
		return "full"
	case SavedCompact:
		return "compact"
	default:
		return "dropped"
	}
}

// ViewMode selects between the referee controls and the read-only display.
type ViewMode string

const (
	ViewModeRef        ViewMode = "ref"
	ViewModeScoreboard ViewMode = "scoreboard"
)

// RemoteConfig addresses the shared match document.
type RemoteConfig struct {
	Game      string  `json:"game"`
	LastKnown *string `json:"lastKnown"`
}

// Repository reads and writes match data through a KV.
type Repository struct {
	kv KV
}

// NewRepository creates a repository over kv.
func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// LoadState returns the stored match. When only a legacy key holds data it is
// migrated to StateKey and removed. The boolean is false when nothing usable
// was stored, in which case the default state is returned.
func (r *Repository) LoadState(ctx context.Context) (state.State, bool) {
	if raw, ok, err := r.kv.Get(ctx, StateKey); err != nil {
		log.Warn().Err(err).Str("key", StateKey).Msg("failed to read stored match")
	} else if ok {
		st, err := codec.Decode([]byte(raw))
		if err == nil {
			return st, true
		}
		log.Warn().Err(err).Str("key", StateKey).Msg("stored match is unreadable")
	}

	for _, key := range LegacyStateKeys {
		raw, ok, err := r.kv.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		st, err := codec.Decode([]byte(raw))
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("legacy match is unreadable")
			continue
		}

		data, err := codec.Marshal(st)
		if err != nil {
			continue
		}
		if err := r.kv.Set(ctx, StateKey, string(data)); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to migrate legacy match")
			continue
		}
		if err := r.kv.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to remove legacy match")
		}

		log.Info().Str("from", key).Str("to", StateKey).Msg("migrated stored match")
		return st, true
	}

	return state.Default(), false
}

// SaveState writes st with the full encoding, falling back to the compact
// encoding when that does not fit, and removing the key when neither can be
// written. It never fails; the outcome says what was stored.
func (r *Repository) SaveState(ctx context.Context, st state.State) SaveOutcome {
	full, err := codec.Marshal(st)
	if err == nil {
		if err = r.kv.Set(ctx, StateKey, string(full)); err == nil {
			return SavedFull
		}
	}
	log.Warn().Err(err).Msg("full snapshot save failed, trying compact encoding")

	compact, err := codec.MarshalCompact(st)
	if err == nil {
		if err = r.kv.Set(ctx, StateKey, string(compact)); err == nil {
			return SavedCompact
		}
	}
	log.Error().Err(err).Msg("compact snapshot save failed, dropping stored match")

	if err := r.kv.Delete(ctx, StateKey); err != nil {
		log.Error().Err(err).Msg("failed to drop stored match")
	}
	return Dropped
}

// LoadViewMode returns the stored view mode, defaulting to the referee view.
// The older "player" value reads as the scoreboard.
func (r *Repository) LoadViewMode(ctx context.Context) ViewMode {
	raw, ok, err := r.kv.Get(ctx, ViewModeKey)
	if err != nil || !ok {
		return ViewModeRef
	}
	switch raw {
	case "scoreboard", "player":
		return ViewModeScoreboard
	default:
		return ViewModeRef
	}
}

// SaveViewMode stores mode.
func (r *Repository) SaveViewMode(ctx context.Context, mode ViewMode) error {
	persist := ViewModeRef
	if mode == ViewModeScoreboard {
		persist = ViewModeScoreboard
	}
	if err := r.kv.Set(ctx, ViewModeKey, string(persist)); err != nil {
		return fmt.Errorf("save view mode: %w", err)
	}
	return nil
}

// LoadRemoteConfig returns the stored remote configuration, or nil when none
// is stored or it names no game.
func (r *Repository) LoadRemoteConfig(ctx context.Context) *RemoteConfig {
	raw, ok, err := r.kv.Get(ctx, RemoteConfigKey)
	if err != nil || !ok {
		return nil
	}
	var cfg RemoteConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil || cfg.Game == "" {
		return nil
	}
	return &cfg
}

// SaveRemoteConfig stores cfg.
func (r *Repository) SaveRemoteConfig(ctx context.Context, cfg RemoteConfig) error {
	if cfg.Game == "" {
		return errors.New("remote config requires a game")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal remote config: %w", err)
	}
	if err := r.kv.Set(ctx, RemoteConfigKey, string(data)); err != nil {
		return fmt.Errorf("save remote config: %w", err)
	}
	return nil
}

// ClearRemoteConfig forgets the remote configuration.
func (r *Repository) ClearRemoteConfig(ctx context.Context) error {
	return r.kv.Delete(ctx, RemoteConfigKey)
}

// DeviceID returns this device's stable identifier, creating it on first use.
func (r *Repository) DeviceID(ctx context.Context) (string, error) {
	if raw, ok, err := r.kv.Get(ctx, DeviceKey); err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	} else if ok && raw != "" {
		return raw, nil
	}

	id := uuid.NewString()
	if err := r.kv.Set(ctx, DeviceKey, id); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}
