package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConnectionManager fans state frames of the served match out to every
// attached WebSocket viewer. Only the newest frame matters, so a frame that
// has not been fanned out yet is replaced by a newer one.
type ConnectionManager struct {
	matchID  string
	config   ConnectionConfig
	clock    clockwork.Clock
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	viewers map[*viewer]struct{}

	latestMu sync.Mutex
	latest   []byte
	signal   chan struct{}
}

// viewer is one attached WebSocket client.
type viewer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	cm   *ConnectionManager
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBufferSize int
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		SendBufferSize: 16,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a manager for the viewers of matchID.
func NewConnectionManager(matchID string, config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 16
	}
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultConnectionConfig().PingInterval
	}
	return &ConnectionManager{
		matchID:  matchID,
		config:   config,
		clock:    clock,
		upgrader: websocket.Upgrader{CheckOrigin: config.CheckOrigin},
		viewers:  make(map[*viewer]struct{}),
		signal:   make(chan struct{}, 1),
	}
}

// Start fans out published frames until ctx is cancelled, then closes every
// viewer.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Str("match_id", cm.matchID).Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.detachAll()
			return
		case <-cm.signal:
			cm.latestMu.Lock()
			frame := cm.latest
			cm.latest = nil
			cm.latestMu.Unlock()
			if frame != nil {
				cm.fanOut(frame)
			}
		}
	}
}

// Publish encodes message as the newest frame for every viewer.
func (cm *ConnectionManager) Publish(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode state frame")
		return
	}

	cm.latestMu.Lock()
	cm.latest = data
	cm.latestMu.Unlock()

	select {
	case cm.signal <- struct{}{}:
	default:
	}
}

// Attach upgrades the request to a WebSocket and sends initial, when not
// nil, before any published frame.
func (cm *ConnectionManager) Attach(w http.ResponseWriter, r *http.Request, initial any) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	v := &viewer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, cm.config.SendBufferSize),
		cm:   cm,
	}
	if initial != nil {
		data, err := json.Marshal(initial)
		if err != nil {
			conn.Close()
			return fmt.Errorf("marshal initial message: %w", err)
		}
		v.send <- data
	}

	cm.mu.Lock()
	cm.viewers[v] = struct{}{}
	total := len(cm.viewers)
	cm.mu.Unlock()

	go v.writePump()
	go v.readPump()

	log.Info().
		Str("connection_id", v.id).
		Str("match_id", cm.matchID).
		Int("viewers", total).
		Msg("viewer attached")
	return nil
}

// detach removes v and closes its send queue. It is safe to call twice.
func (cm *ConnectionManager) detach(v *viewer) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.viewers[v]; !ok {
		return
	}
	delete(cm.viewers, v)
	close(v.send)

	log.Info().Str("connection_id", v.id).Msg("viewer detached")
}

func (cm *ConnectionManager) detachAll() {
	cm.mu.RLock()
	all := make([]*viewer, 0, len(cm.viewers))
	for v := range cm.viewers {
		all = append(all, v)
	}
	cm.mu.RUnlock()

	for _, v := range all {
		cm.detach(v)
	}
}

// fanOut queues frame on every viewer. A viewer whose queue is full is too
// slow to follow the match and is dropped.
func (cm *ConnectionManager) fanOut(frame []byte) {
	cm.mu.RLock()
	targets := make([]*viewer, 0, len(cm.viewers))
	for v := range cm.viewers {
		targets = append(targets, v)
	}
	cm.mu.RUnlock()

	for _, v := range targets {
		select {
		case v.send <- frame:
		default:
			log.Warn().Str("connection_id", v.id).Msg("viewer too slow, dropping")
			cm.detach(v)
		}
	}
}

// ConnectionStats summarizes attached viewers
type ConnectionStats struct {
	MatchID string `json:"match_id"`
	Viewers int    `json:"viewers"`
}

// Stats returns the number of attached viewers.
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return ConnectionStats{MatchID: cm.matchID, Viewers: len(cm.viewers)}
}

func (v *viewer) writePump() {
	ping := v.cm.clock.NewTicker(v.cm.config.PingInterval)
	defer func() {
		ping.Stop()
		v.conn.Close()
		v.cm.detach(v)
	}()

	for {
		select {
		case frame, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(v.cm.config.WriteTimeout))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("connection_id", v.id).Msg("failed to write state frame")
				return
			}
		case <-ping.Chan():
			v.conn.SetWriteDeadline(time.Now().Add(v.cm.config.WriteTimeout))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", v.id).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only keeps the read deadline alive; viewers never send commands
// over the socket.
func (v *viewer) readPump() {
	defer func() {
		v.cm.detach(v)
		v.conn.Close()
	}()

	v.conn.SetReadLimit(v.cm.config.MaxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(v.cm.config.ReadTimeout))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(v.cm.config.ReadTimeout))
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", v.id).Msg("unexpected WebSocket close")
			}
			return
		}
		v.conn.SetReadDeadline(time.Now().Add(v.cm.config.ReadTimeout))
	}
}
