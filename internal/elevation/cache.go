package elevation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Store is the byte-level storage behind a Cache
type Store interface {
	// Get returns ok=false on a miss
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache remembers lookup results keyed by a content hash of the requested
// coordinates, so re-analyzing the same track does not hit the API again
type Cache struct {
	store Store
	ttl   time.Duration
}

// NewCache wraps store; ttl of 0 keeps entries indefinitely
func NewCache(store Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

// Key returns the content hash for a coordinate batch
func Key(coords []Coordinate) string {
	return "elevation:" + strconv.FormatUint(xxhash.Sum64String(formatLocations(coords)), 16)
}

// Get returns the cached elevations for coords. Store errors are logged and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, coords []Coordinate) ([]*float64, bool) {
	data, ok, err := c.store.Get(ctx, Key(coords))
	if err != nil {
		log.Warn().Err(err).Msg("Elevation cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var elevations []*float64
	if err := json.Unmarshal(data, &elevations); err != nil {
		log.Warn().Err(err).Msg("Discarding malformed elevation cache entry")
		return nil, false
	}
	if len(elevations) != len(coords) {
		return nil, false
	}
	return elevations, true
}

// Put stores elevations for coords
func (c *Cache) Put(ctx context.Context, coords []Coordinate, elevations []*float64) error {
	data, err := json.Marshal(elevations)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.store.Set(ctx, Key(coords), data, c.ttl)
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Store
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Len returns the number of stored entries, including expired ones
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
