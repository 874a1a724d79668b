package remote

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const memoryWatchBuffer = 64

// MemoryStore is an in-process Store. Revisions are global and increasing,
// like a stream sequence.
type MemoryStore struct {
	mu       sync.Mutex
	seq      uint64
	entries  map[string]Entry
	watchers map[string]map[*memoryWatcher]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]Entry),
		watchers: make(map[string]map[*memoryWatcher]struct{}),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.Deleted {
		return Entry{}, ErrKeyNotFound
	}
	return copyEntry(e), nil
}

func (m *MemoryStore) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !e.Deleted {
		return 0, ErrKeyExists
	}
	return m.write(key, value, false), nil
}

func (m *MemoryStore) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.Revision != revision {
		return 0, ErrRevisionMismatch
	}
	return m.write(key, value, false), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(key, value, false), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return nil
	}
	m.write(key, nil, true)
	return nil
}

// Revision returns the current revision of key, or zero.
func (m *MemoryStore) Revision(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key].Revision
}

func (m *MemoryStore) Watch(ctx context.Context, key string) (Watcher, error) {
	w := &memoryWatcher{
		store: m,
		key:   key,
		ch:    make(chan Entry, memoryWatchBuffer),
	}

	m.mu.Lock()
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[*memoryWatcher]struct{})
	}
	m.watchers[key][w] = struct{}{}
	if e, ok := m.entries[key]; ok && !e.Deleted {
		w.ch <- copyEntry(e)
	}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return w, nil
}

// write must be called with mu held.
func (m *MemoryStore) write(key string, value []byte, deleted bool) uint64 {
	m.seq++
	e := Entry{Key: key, Value: append([]byte(nil), value...), Revision: m.seq, Deleted: deleted}
	m.entries[key] = e

	for w := range m.watchers[key] {
		select {
		case w.ch <- copyEntry(e):
		default:
			log.Warn().Str("key", key).Uint64("revision", e.Revision).Msg("watcher is full, dropping update")
		}
	}
	return e.Revision
}

func (m *MemoryStore) removeWatcher(w *memoryWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.watchers[w.key]; ok {
		if _, ok := ws[w]; ok {
			delete(ws, w)
			close(w.ch)
		}
	}
}

func copyEntry(e Entry) Entry {
	e.Value = append([]byte(nil), e.Value...)
	return e
}

type memoryWatcher struct {
	store *MemoryStore
	key   string
	ch    chan Entry
	once  sync.Once
}

func (w *memoryWatcher) Updates() <-chan Entry { return w.ch }

func (w *memoryWatcher) Stop() error {
	w.once.Do(func() { w.store.removeWatcher(w) })
	return nil
}
