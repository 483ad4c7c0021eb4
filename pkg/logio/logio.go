// Package logio hydrates logs from the block store: bulk BFS fetches from
// manifest hashes, manifest documents, entry hashes or entry roots, with bounded
// length, exclusion sets, bounded concurrency, wall-clock budget and
// progress reporting.
package logio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	cid "github.com/ipfs/go-cid"
	cbornode "github.com/ipfs/go-ipld-cbor"
	"github.com/polydawn/refmt/obj/atlas"
	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
)

// DefaultConcurrency bounds parallel block fetches during hydration.
const DefaultConcurrency = 16

// JSONLog is the stored log manifest.
type JSONLog struct {
	ID    string   `json:"id"`
	Heads []string `json:"heads"`
}

// Snapshot is a fully materialized log image.
type Snapshot struct {
	ID     string         `json:"id"`
	Heads  []*entry.Entry `json:"heads"`
	Values []*entry.Entry `json:"values"`
}

// JSONLog reduces a snapshot to its manifest.
func (s *Snapshot) JSONLog() *JSONLog {
	heads := make([]string, 0, len(s.Heads))
	for _, h := range s.Heads {
		heads = append(heads, h.HashString())
	}
	return &JSONLog{ID: s.ID, Heads: heads}
}

// manifestDoc is the manifest's block form under the modern codec.
type manifestDoc struct {
	ID    string   `json:"id"`
	Heads []string `json:"heads"`
}

func init() {
	cbornode.RegisterCborType(atlas.BuildEntry(manifestDoc{}).StructMap().
		AddField("ID", atlas.StructMapEntry{SerialName: "id"}).
		AddField("Heads", atlas.StructMapEntry{SerialName: "heads"}).
		Complete())
}

// ProgressFunc observes each hydrated entry: its hash, the entry itself, the
// entry whose next pointer led to it (nil for roots) and the BFS depth.
type ProgressFunc func(hash cid.Cid, e *entry.Entry, parent *entry.Entry, depth int)

// FetchOptions bound a hydration run.
type FetchOptions struct {
	// Length caps the number of entries fetched; nil or -1 means all
	// reachable.
	Length *int
	// Exclude lists entries that are already held and must never be
	// re-fetched.
	Exclude []*entry.Entry
	// Concurrency bounds parallel block fetches; DefaultConcurrency if 0.
	Concurrency int
	// Timeout is a wall-clock budget. On expiry the partial result fetched
	// so far is returned without error.
	Timeout time.Duration
	// Progress, when set, is invoked once per fetched entry.
	Progress ProgressFunc
	// Logger receives fetch diagnostics; silent if nil.
	Logger *slog.Logger
}

func (o *FetchOptions) length() int {
	if o == nil || o.Length == nil {
		return -1
	}
	return *o.Length
}

func (o *FetchOptions) concurrency() int {
	if o == nil || o.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return o.Concurrency
}

func (o *FetchOptions) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

type fetchTask struct {
	hash   cid.Cid
	parent *entry.Entry
	depth  int
}

// FetchAll walks the DAG breadth-first from the given root hashes, fetching
// entries through the store with bounded parallelism. Missing blocks bound
// the walk (a log may be partial) and excluded entries are never re-fetched.
func FetchAll(ctx context.Context, store blockio.Store, roots []cid.Cid, opts *FetchOptions) ([]*entry.Entry, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}

	length := opts.length()
	logger := opts.logger()

	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	seen := make(map[string]struct{})
	if opts != nil {
		for _, e := range opts.Exclude {
			if e != nil {
				seen[e.Hash.KeyString()] = struct{}{}
			}
		}
	}

	var queue []fetchTask
	enqueue := func(h cid.Cid, parent *entry.Entry, depth int) {
		if !h.Defined() {
			return
		}
		if _, ok := seen[h.KeyString()]; ok {
			return
		}
		seen[h.KeyString()] = struct{}{}
		queue = append(queue, fetchTask{hash: h, parent: parent, depth: depth})
	}
	for _, h := range roots {
		enqueue(h, nil, 0)
	}

	var result []*entry.Entry
	for len(queue) > 0 && (length < 0 || len(result) < length) {
		if opts != nil && opts.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// The budget expired: the partial set is still consistent.
			logger.Debug("fetch budget expired", "fetched", len(result))
			return result, nil
		}
		batch := queue
		max := opts.concurrency()
		if len(batch) > max {
			batch = batch[:max]
		}
		if length >= 0 && len(batch) > length-len(result) {
			batch = batch[:length-len(result)]
		}
		queue = queue[len(batch):]

		fetched := make([]*entry.Entry, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, task := range batch {
			g.Go(func() error {
				e, err := entry.FromMultihash(gctx, store, task.hash)
				if err != nil {
					if errors.Is(err, blockio.ErrBlockNotFound) {
						logger.Debug("entry not in store, bounding traversal",
							"hash", blockio.CIDString(task.hash))
						return nil
					}
					return err
				}
				fetched[i] = e
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			if opts != nil && opts.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
				// The budget expired: the partial set is still consistent.
				logger.Debug("fetch budget expired", "fetched", len(result))
				return result, nil
			}
			return nil, fmt.Errorf("fetch entries: %w", err)
		}

		for i, e := range fetched {
			if e == nil {
				continue
			}
			result = append(result, e)
			if opts != nil && opts.Progress != nil {
				opts.Progress(e.Hash, e, batch[i].parent, batch[i].depth)
			}
			for _, n := range e.Next {
				enqueue(n, e, batch[i].depth+1)
			}
			for _, r := range e.Refs {
				enqueue(r, e, batch[i].depth+1)
			}
		}
	}

	if length >= 0 {
		sortByCompare(result)
		if len(result) > length {
			result = result[len(result)-length:]
		}
	}
	return result, nil
}

// FromMultihash loads the manifest at hash and hydrates the log it names.
func FromMultihash(ctx context.Context, store blockio.Store, hash cid.Cid, opts *FetchOptions) (*Snapshot, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if !hash.Defined() {
		return nil, errmsg.ErrInvalidHashUndefined
	}

	var doc manifestDoc
	if err := blockio.ReadCBOR(ctx, store, hash, &doc); err != nil {
		return nil, err
	}

	headHashes := make([]cid.Cid, 0, len(doc.Heads))
	for _, s := range doc.Heads {
		c, err := blockio.ParseCID(s)
		if err != nil {
			return nil, err
		}
		headHashes = append(headHashes, c)
	}

	values, err := FetchAll(ctx, store, headHashes, opts)
	if err != nil {
		return nil, err
	}
	sortByCompare(values)

	heads := make([]*entry.Entry, 0, len(headHashes))
	for _, e := range values {
		for _, h := range headHashes {
			if e.Hash.Equals(h) {
				heads = append(heads, e)
				break
			}
		}
	}

	return &Snapshot{ID: doc.ID, Heads: heads, Values: values}, nil
}

// FromEntryHash hydrates entries reachable from the given hashes.
func FromEntryHash(ctx context.Context, store blockio.Store, hashes []cid.Cid, opts *FetchOptions) ([]*entry.Entry, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	return FetchAll(ctx, store, hashes, opts)
}

// FromEntry hydrates the DAG reachable from the given source entries, which
// become the snapshot's heads.
func FromEntry(ctx context.Context, store blockio.Store, sources []*entry.Entry, opts *FetchOptions) (*Snapshot, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if sources == nil {
		return nil, errmsg.ErrEntriesNotAnArray
	}

	roots := make([]cid.Cid, 0, len(sources))
	for _, e := range sources {
		if e == nil || !e.Hash.Defined() {
			return nil, errmsg.ErrEntriesNotAnArray
		}
		roots = append(roots, e.Hash)
	}

	values, err := FetchAll(ctx, store, roots, opts)
	if err != nil {
		return nil, err
	}
	sortByCompare(values)

	id := ""
	if len(sources) > 0 {
		id = sources[0].ID
	}
	return &Snapshot{ID: id, Heads: sources, Values: values}, nil
}

// FromJSON hydrates a log from its manifest document.
func FromJSON(ctx context.Context, store blockio.Store, jl *JSONLog, opts *FetchOptions) (*Snapshot, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if jl == nil {
		return nil, errmsg.ErrLogNotDefined
	}

	headHashes := make([]cid.Cid, 0, len(jl.Heads))
	for _, s := range jl.Heads {
		c, err := blockio.ParseCID(s)
		if err != nil {
			return nil, err
		}
		headHashes = append(headHashes, c)
	}

	values, err := FetchAll(ctx, store, headHashes, opts)
	if err != nil {
		return nil, err
	}
	sortByCompare(values)

	heads := make([]*entry.Entry, 0, len(headHashes))
	for _, e := range values {
		for _, h := range headHashes {
			if e.Hash.Equals(h) {
				heads = append(heads, e)
				break
			}
		}
	}

	return &Snapshot{ID: jl.ID, Heads: heads, Values: values}, nil
}

// WriteManifest stores the manifest for the given log id and head hashes and
// returns its content address.
func WriteManifest(ctx context.Context, store blockio.Store, id string, heads []cid.Cid) (cid.Cid, error) {
	if store == nil {
		return cid.Undef, errmsg.ErrIPFSNotDefined
	}
	doc := manifestDoc{ID: id, Heads: make([]string, 0, len(heads))}
	for _, h := range heads {
		doc.Heads = append(doc.Heads, blockio.CIDString(h))
	}
	return blockio.WriteCBOR(ctx, store, &doc, true)
}

func sortByCompare(entries []*entry.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		d, err := entry.Compare(entries[i], entries[j])
		return err == nil && d < 0
	})
}
