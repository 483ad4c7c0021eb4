package log

import (
	"context"

	cid "github.com/ipfs/go-cid"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
	"github.com/Mindburn-Labs/oplog/pkg/logio"
)

// NewFromMultihash reconstructs a log from a stored manifest.
func NewFromMultihash(ctx context.Context, store blockio.Store, ident *identity.Identity, hash cid.Cid, opts *Options, fetchOpts *logio.FetchOptions) (*Log, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, errmsg.ErrIdentityNotDefined
	}

	snapshot, err := logio.FromMultihash(ctx, store, hash, fetchOpts)
	if err != nil {
		return nil, err
	}

	return newFromSnapshotData(store, ident, snapshot, opts)
}

// NewFromEntryHash reconstructs a log from entries reachable from hash. The
// log id comes from opts (the manifest is not consulted).
func NewFromEntryHash(ctx context.Context, store blockio.Store, ident *identity.Identity, hash cid.Cid, opts *Options, fetchOpts *logio.FetchOptions) (*Log, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, errmsg.ErrIdentityNotDefined
	}

	entries, err := logio.FromEntryHash(ctx, store, []cid.Cid{hash}, fetchOpts)
	if err != nil {
		return nil, err
	}

	merged := Options{}
	if opts != nil {
		merged = *opts
	}
	merged.Entries = entry.NewOrderedMapFromEntries(entries)
	merged.Heads = nil
	return New(store, ident, &merged)
}

// NewFromEntry reconstructs a log from the DAG reachable from the given
// entries, which become the heads.
func NewFromEntry(ctx context.Context, store blockio.Store, ident *identity.Identity, sources []*entry.Entry, opts *Options, fetchOpts *logio.FetchOptions) (*Log, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, errmsg.ErrIdentityNotDefined
	}

	snapshot, err := logio.FromEntry(ctx, store, sources, fetchOpts)
	if err != nil {
		return nil, err
	}

	return newFromSnapshotData(store, ident, snapshot, opts)
}

// NewFromJSON reconstructs a log from a manifest document, fetching the
// entries it names.
func NewFromJSON(ctx context.Context, store blockio.Store, ident *identity.Identity, jl *logio.JSONLog, opts *Options, fetchOpts *logio.FetchOptions) (*Log, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, errmsg.ErrIdentityNotDefined
	}

	snapshot, err := logio.FromJSON(ctx, store, jl, fetchOpts)
	if err != nil {
		return nil, err
	}

	return newFromSnapshotData(store, ident, snapshot, opts)
}

// NewFromSnapshot absorbs a fully materialized snapshot without touching
// the store.
func NewFromSnapshot(store blockio.Store, ident *identity.Identity, snapshot *logio.Snapshot, opts *Options) (*Log, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, errmsg.ErrIdentityNotDefined
	}
	if snapshot == nil || snapshot.Values == nil {
		return nil, errmsg.ErrEntriesNotAnArray
	}
	if snapshot.Heads == nil {
		return nil, errmsg.ErrHeadsNotAnArray
	}
	for _, e := range snapshot.Values {
		if !entry.IsEntry(e) {
			return nil, errmsg.ErrEntriesNotAnArray
		}
	}

	return newFromSnapshotData(store, ident, snapshot, opts)
}

func newFromSnapshotData(store blockio.Store, ident *identity.Identity, snapshot *logio.Snapshot, opts *Options) (*Log, error) {
	merged := Options{}
	if opts != nil {
		merged = *opts
	}
	if merged.ID == "" {
		merged.ID = snapshot.ID
	}
	merged.Entries = entry.NewOrderedMapFromEntries(snapshot.Values)
	merged.Heads = snapshot.Heads
	return New(store, ident, &merged)
}
