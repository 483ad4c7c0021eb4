package blockio

import (
	"context"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
)

// MemoryStore is the default in-process store: a mutex-guarded map from
// content address to raw block bytes. Blocks are immutable, so Put of an
// existing address is a no-op.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	pins   map[string]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[string][]byte),
		pins:   make(map[string]struct{}),
	}
}

func (m *MemoryStore) Put(_ context.Context, b blocks.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := b.Cid().KeyString()
	if _, ok := m.blocks[key]; !ok {
		data := make([]byte, len(b.RawData()))
		copy(data, b.RawData())
		m.blocks[key] = data
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, c cid.Cid) (blocks.Block, error) {
	m.mu.RLock()
	data, ok := m.blocks[c.KeyString()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrBlockNotFound
	}
	return blocks.NewBlockWithCid(data, c)
}

func (m *MemoryStore) Pin(_ context.Context, c cid.Cid) error {
	m.mu.Lock()
	m.pins[c.KeyString()] = struct{}{}
	m.mu.Unlock()
	return nil
}

// Pinned reports whether c has been pinned.
func (m *MemoryStore) Pinned(c cid.Cid) bool {
	m.mu.RLock()
	_, ok := m.pins[c.KeyString()]
	m.mu.RUnlock()
	return ok
}

// Len returns the number of stored blocks.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}
