// Package storage contains in-memory implementations of the engine's record
// and blob store interfaces, used by tests and by local development without a
// Postgres/MinIO stack.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/driftshare/driftshare/internal/share"
)

// MemoryStore is a RecordStore backed by a mutex-guarded map. The mutex is
// what makes ConsumeDownload's check-and-decrement indivisible here; the
// Postgres implementation relies on a single UPDATE instead.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*share.Record
	byLocator map[string]string
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*share.Record),
		byLocator: make(map[string]string),
	}
}

// Insert stores a new record, enforcing locator uniqueness.
func (m *MemoryStore) Insert(_ context.Context, rec *share.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byLocator[rec.Locator]; ok {
		return share.ErrLocatorTaken
	}
	if _, ok := m.byID[rec.ID]; ok {
		return fmt.Errorf("duplicate record id %s", rec.ID)
	}
	m.byID[rec.ID] = cloneRecord(rec)
	m.byLocator[rec.Locator] = rec.ID
	return nil
}

// GetByID returns a copy of the record so callers cannot mutate shared state.
func (m *MemoryStore) GetByID(_ context.Context, id string) (*share.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, share.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// GetByLocator resolves the public token to a record copy.
func (m *MemoryStore) GetByLocator(_ context.Context, locator string) (*share.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byLocator[locator]
	if !ok {
		return nil, share.ErrNotFound
	}
	return cloneRecord(m.byID[id]), nil
}

// ConsumeDownload performs the atomic compare-and-decrement under the write
// lock, setting the terminal flag in the same step when the budget hits zero.
func (m *MemoryStore) ConsumeDownload(_ context.Context, id string) (share.DecrementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return share.DecrementResult{}, share.ErrNotFound
	}
	if rec.RemainingDownloads == nil {
		return share.DecrementResult{}, fmt.Errorf("share %s has no download budget", id)
	}
	if rec.Terminal || *rec.RemainingDownloads <= 0 {
		return share.DecrementResult{}, share.ErrBudgetExhausted
	}
	*rec.RemainingDownloads--
	if *rec.RemainingDownloads == 0 {
		rec.Terminal = true
	}
	rec.UpdatedAt = time.Now().UTC()
	return share.DecrementResult{
		NewRemaining:   *rec.RemainingDownloads,
		BecameTerminal: rec.Terminal,
	}, nil
}

// FindReclaimable returns copies of every record matching the reclaim
// predicate at the given instant.
func (m *MemoryStore) FindReclaimable(_ context.Context, now time.Time) ([]*share.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*share.Record
	for _, rec := range m.byID {
		if rec.Reclaimable(now) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// Delete removes a record and frees its locator.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return share.ErrNotFound
	}
	delete(m.byLocator, rec.Locator)
	delete(m.byID, id)
	return nil
}

func cloneRecord(rec *share.Record) *share.Record {
	out := *rec
	if rec.MaxDownloads != nil {
		v := *rec.MaxDownloads
		out.MaxDownloads = &v
	}
	if rec.RemainingDownloads != nil {
		v := *rec.RemainingDownloads
		out.RemainingDownloads = &v
	}
	return &out
}

// MemoryBlobStore is a BlobStore over a plain map, mirroring the semantics
// the engine needs from MinIO: fallible get/delete keyed by object name.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore constructs a MemoryBlobStore.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// Put reads the body into the map.
func (m *MemoryBlobStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

// Get returns a reader over the stored bytes.
func (m *MemoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, share.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob. Deleting a missing key is not an error, matching
// object-store semantics.
func (m *MemoryBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Len reports how many blobs are stored; tests use it to assert sweeps.
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
