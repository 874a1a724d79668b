package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the JetStream key-value store.
type NATSConfig struct {
	URL           string
	Bucket        string
	History       uint8
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS store configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Bucket:        "MATCHES",
		History:       5,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSStore is a Store backed by a JetStream key-value bucket.
type NATSStore struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	config NATSConfig
}

// NewNATSStore connects to NATS and opens the bucket, creating it if needed.
func NewNATSStore(ctx context.Context, config NATSConfig) (*NATSStore, error) {
	opts := []nats.Option{
		nats.Name("sideline"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	s := &NATSStore{nc: nc, js: js, config: config}
	if err := s.ensureBucket(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	return s, nil
}

// ensureBucket opens the key-value bucket, creating it on first use.
func (s *NATSStore) ensureBucket(ctx context.Context) error {
	kv, err := s.js.KeyValue(ctx, s.config.Bucket)
	if err == nil {
		log.Info().Str("bucket", s.config.Bucket).Msg("using existing key-value bucket")
		s.kv = kv
		return nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return fmt.Errorf("get bucket: %w", err)
	}

	kv, err = s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      s.config.Bucket,
		Description: "Match documents",
		History:     s.config.History,
	})
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	log.Info().Str("bucket", s.config.Bucket).Msg("created key-value bucket")
	s.kv = kv
	return nil
}

// Close drains the NATS connection.
func (s *NATSStore) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

func (s *NATSStore) Get(ctx context.Context, key string) (Entry, error) {
	e, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return Entry{}, ErrKeyNotFound
		}
		return Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	return fromKVEntry(e), nil
}

func (s *NATSStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrKeyExists
		}
		return 0, fmt.Errorf("create %s: %w", key, err)
	}
	return rev, nil
}

func (s *NATSStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := s.kv.Update(ctx, key, value, revision)
	if err != nil {
		if isWrongSequence(err) {
			return 0, ErrRevisionMismatch
		}
		return 0, fmt.Errorf("update %s: %w", key, err)
	}
	return rev, nil
}

func (s *NATSStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return rev, nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) Watch(ctx context.Context, key string) (Watcher, error) {
	kw, err := s.kv.Watch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}

	w := &natsWatcher{kw: kw, ch: make(chan Entry)}
	go w.run()
	return w, nil
}

// isWrongSequence reports whether err is JetStream rejecting a conditional
// write because the subject moved on.
func isWrongSequence(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}

func fromKVEntry(e jetstream.KeyValueEntry) Entry {
	op := e.Operation()
	return Entry{
		Key:      e.Key(),
		Value:    e.Value(),
		Revision: e.Revision(),
		Deleted:  op == jetstream.KeyValueDelete || op == jetstream.KeyValuePurge,
	}
}

type natsWatcher struct {
	kw jetstream.KeyWatcher
	ch chan Entry
}

// run forwards entries until the underlying watcher closes its channel.
func (w *natsWatcher) run() {
	defer close(w.ch)
	for e := range w.kw.Updates() {
		// A nil entry marks the end of the initial values.
		if e == nil {
			continue
		}
		w.ch <- fromKVEntry(e)
	}
}

func (w *natsWatcher) Updates() <-chan Entry { return w.ch }

func (w *natsWatcher) Stop() error { return w.kw.Stop() }
