package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/models"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

type memDedup struct {
	userID      string
	receivedAt  time.Time
	processedAt *time.Time
}

// InMemoryStore keeps everything in process memory. It is safe for
// concurrent use; expired entries are hidden on read and removed by
// SweepExpired.
type InMemoryStore struct {
	mu        sync.Mutex
	kv        map[string]memEntry
	binds     map[string][]models.GuildBind
	dedup     map[string]memDedup
	now       func() time.Time
	retention time.Duration
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := applyOpts(opts)
	return &InMemoryStore{
		kv:        make(map[string]memEntry),
		binds:     make(map[string][]models.GuildBind),
		dedup:     make(map[string]memDedup),
		now:       cfg.Now,
		retention: cfg.DedupRetention,
	}
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = memEntry{value: append([]byte(nil), value...), expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *InMemoryStore) GetGuildBinds(_ context.Context, guildID string) ([]models.GuildBind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GuildBind(nil), s.binds[guildID]...), nil
}

func (s *InMemoryStore) SaveGuildBinds(_ context.Context, guildID string, binds []models.GuildBind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(binds) == 0 {
		delete(s.binds, guildID)
		return nil
	}
	s.binds[guildID] = append([]models.GuildBind(nil), binds...)
	return nil
}

func (s *InMemoryStore) RecordInteraction(_ context.Context, interactionID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[interactionID]; ok {
		return false, nil
	}
	s.dedup[interactionID] = memDedup{userID: userID, receivedAt: s.now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, interactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dedup[interactionID]; ok {
		now := s.now()
		d.processedAt = &now
		s.dedup[interactionID] = d
	}
	return nil
}

func (s *InMemoryStore) SweepExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed int64
	for k, e := range s.kv {
		if !now.Before(e.expiresAt) {
			delete(s.kv, k)
			removed++
		}
	}
	cutoff := now.Add(-s.retention)
	for id, d := range s.dedup {
		if d.receivedAt.Before(cutoff) {
			delete(s.dedup, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("InMemoryStore.SweepExpired: removed rows", "count", removed)
	}
	return removed, nil
}

func (s *InMemoryStore) Close() error { return nil }
