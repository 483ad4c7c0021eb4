// Package blockio reads and writes log entries and manifests as blocks in a
// content-addressable store.
//
// Two codecs are supported: the modern structured codec (canonical dag-cbor,
// CIDv1, base58btc string form with the familiar "zdpu" prefix) used for all
// new blocks, and the legacy protobuf block format (dag-pb, CIDv0, "Qm"
// prefix) kept read/write-compatible for version-0 entries.
package blockio

import (
	"context"
	"errors"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
)

// ErrBlockNotFound is returned by Get when the store holds no block for the
// requested content address.
var ErrBlockNotFound = errors.New("block not found")

// Store is the narrow content-addressable storage surface the log consumes.
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, b blocks.Block) error
	Get(ctx context.Context, c cid.Cid) (blocks.Block, error)
}

// Pinner is implemented by stores that distinguish pinned blocks. Pinning is
// advisory; stores without the concept simply don't implement it.
type Pinner interface {
	Pin(ctx context.Context, c cid.Cid) error
}

func pin(ctx context.Context, s Store, c cid.Cid) error {
	if p, ok := s.(Pinner); ok {
		return p.Pin(ctx, c)
	}
	return nil
}
