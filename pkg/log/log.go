// Package log implements the append-only, signed, content-addressed
// operation log: a Merkle DAG of entries merged across replicas as an
// operation-based CRDT with a deterministic total order.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/iancoleman/orderedmap"
	cid "github.com/ipfs/go-cid"

	"github.com/Mindburn-Labs/oplog/pkg/accesscontroller"
	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
	"github.com/Mindburn-Labs/oplog/pkg/lamport"
	"github.com/Mindburn-Labs/oplog/pkg/logio"
	"github.com/Mindburn-Labs/oplog/pkg/sorting"
)

// DefaultJoinConcurrency bounds parallel entry verification during join.
const DefaultJoinConcurrency = 16

// Log is a replicated append-only log. A Log instance is not safe for
// concurrent mutation: callers serialize Append/Join/Get themselves, the
// way they would any other single-writer state.
type Log struct {
	id       string
	storage  blockio.Store
	identity *identity.Identity
	access   accesscontroller.Interface
	sortFn   sorting.Comparator
	clock    lamport.Clock

	// entryIndex holds materialized entries by hash; headsIndex the current
	// frontier; nextsIndex maps a parent hash to the child that referenced
	// it last; hashIndex records every known hash with its next pointers in
	// insertion order and is the canonical length counter.
	entryIndex *entry.OrderedMap
	headsIndex *entry.OrderedMap
	nextsIndex map[string]string
	hashIndex  *orderedmap.OrderedMap
	length     int

	joinConcurrency int
}

// Options configure a new log.
type Options struct {
	// ID names the log; a random identifier is generated when empty.
	ID string
	// Access is the append predicate; Default (allow all) when nil.
	Access accesscontroller.Interface
	// Entries seed the log.
	Entries *entry.OrderedMap
	// Heads override the frontier; recomputed from Entries when empty.
	Heads []*entry.Entry
	// Clock seeds the Lamport clock.
	Clock *lamport.Clock
	// SortFn is the presentation order; LastWriteWins when nil. It is
	// always wrapped in the NoZeroes guard.
	SortFn sorting.Comparator
	// JoinConcurrency bounds parallel verification during join.
	JoinConcurrency int
}

// New creates a log over the given store for the given author identity.
func New(store blockio.Store, ident *identity.Identity, opts *Options) (*Log, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, errmsg.ErrIdentityNotDefined
	}
	if opts == nil {
		opts = &Options{}
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	sortFn := opts.SortFn
	if sortFn == nil {
		sortFn = sorting.LastWriteWins
	}
	access := opts.Access
	if access == nil {
		access = accesscontroller.Default{}
	}
	joinConcurrency := opts.JoinConcurrency
	if joinConcurrency <= 0 {
		joinConcurrency = DefaultJoinConcurrency
	}

	entries := entry.NewOrderedMap()
	if opts.Entries != nil {
		entries = opts.Entries.Copy()
	}

	heads := opts.Heads
	if len(heads) == 0 && entries.Len() > 0 {
		heads = FindHeads(entries.Slice())
	}

	maxTime := 0
	if opts.Clock != nil {
		maxTime = opts.Clock.Time
	}
	for _, h := range heads {
		if h.Clock.Time > maxTime {
			maxTime = h.Clock.Time
		}
	}

	l := &Log{
		id:              id,
		storage:         store,
		identity:        ident,
		access:          access,
		sortFn:          sorting.NoZeroes(sortFn),
		clock:           lamport.New(ident.PublicKey, maxTime),
		entryIndex:      entries,
		headsIndex:      entry.NewOrderedMapFromEntries(heads),
		nextsIndex:      make(map[string]string),
		hashIndex:       orderedmap.New(),
		joinConcurrency: joinConcurrency,
	}

	for _, k := range entries.Keys() {
		e := entries.UnsafeGet(k)
		for _, n := range e.Next {
			l.nextsIndex[blockio.CIDString(n)] = k
		}
		l.hashIndex.Set(k, e.Next)
		l.length++
	}

	return l, nil
}

// ID returns the log identifier.
func (l *Log) ID() string { return l.id }

// Clock returns the current Lamport clock.
func (l *Log) Clock() lamport.Clock { return l.clock }

// Length returns the number of entries known to this instance. It can
// exceed the number of materialized entries when hashes are known before
// their entries have been fetched.
func (l *Log) Length() int { return l.length }

// Identity returns the author identity the log appends under.
func (l *Log) Identity() *identity.Identity { return l.identity }

// Has reports whether the hash is known to this instance.
func (l *Log) Has(hash cid.Cid) bool {
	_, ok := l.hashIndex.Get(blockio.CIDString(hash))
	return ok
}

// Get returns the entry for hash, fetching it from the store when it is not
// materialized in the entry index, whether or not the hash is known.
func (l *Log) Get(ctx context.Context, hash cid.Cid) (*entry.Entry, error) {
	if e, ok := l.entryIndex.Get(blockio.CIDString(hash)); ok {
		return e, nil
	}
	return entry.FromMultihash(ctx, l.storage, hash)
}

// AppendOptions tune a single append.
type AppendOptions struct {
	// PointerCount bounds the skip-list references recorded on the new
	// entry; 1 when zero.
	PointerCount int
	// Pin marks the stored entry block as pinned.
	Pin bool
}

// Append creates, signs and stores a new entry holding data, advances the
// clock past every current head and replaces the frontier with the new
// entry.
func (l *Log) Append(ctx context.Context, data []byte, opts *AppendOptions) (*entry.Entry, error) {
	if opts == nil {
		opts = &AppendOptions{}
	}
	pointerCount := opts.PointerCount
	if pointerCount < 1 {
		pointerCount = 1
	}

	heads := l.headsIndex.Slice()

	// Advance the clock past the latest observed head.
	newTime := l.clock.Time
	for _, h := range heads {
		if h.Clock.Time > newTime {
			newTime = h.Clock.Time
		}
	}
	l.clock = lamport.New(l.clock.ID, newTime+1)

	// Collect the reachable tail for skip-list reference selection.
	amount := pointerCount
	if len(heads) > amount {
		amount = len(heads)
	}
	all, err := l.Traverse(heads, amount, "")
	if err != nil {
		return nil, fmt.Errorf("append failed: %w", err)
	}

	next := make([]cid.Cid, 0, len(heads))
	for _, h := range heads {
		next = append(next, h.Hash)
	}
	refs := referenceHashes(all, pointerCount, next)

	e, err := entry.Create(ctx, l.storage, l.identity, l.id, data, next, &l.clock, refs, opts.Pin)
	if err != nil {
		return nil, fmt.Errorf("append failed: %w", err)
	}

	if !l.access.CanAppend(e, l.identity.Provider()) {
		return nil, errmsg.ErrKeyNotAllowed(l.identity.ID)
	}

	key := e.HashString()
	l.entryIndex.Set(key, e)
	for _, h := range heads {
		l.nextsIndex[h.HashString()] = key
	}
	l.headsIndex = entry.NewOrderedMapFromEntries([]*entry.Entry{e})
	l.hashIndex.Set(key, e.Next)
	l.length++

	return e, nil
}

// referenceHashes picks skip-list references at geometrically spaced
// distances 1, 2, 4, 8, … through the traversed tail, always including the
// deepest reachable entry when the tail is shorter than the pointer budget,
// and excluding anything already pointed at causally.
func referenceHashes(all []*entry.Entry, pointerCount int, next []cid.Cid) []cid.Cid {
	if len(all) == 0 {
		return nil
	}

	inNext := make(map[string]struct{}, len(next))
	for _, n := range next {
		inNext[n.KeyString()] = struct{}{}
	}

	limit := pointerCount
	if len(all) < limit {
		limit = len(all)
	}

	var refs []cid.Cid
	seen := make(map[string]struct{})
	add := func(e *entry.Entry) {
		k := e.Hash.KeyString()
		if _, ok := seen[k]; ok {
			return
		}
		if _, ok := inNext[k]; ok {
			return
		}
		seen[k] = struct{}{}
		refs = append(refs, e.Hash)
	}

	for d := 1; d <= limit; d *= 2 {
		idx := d - 1
		if idx > len(all)-1 {
			idx = len(all) - 1
		}
		add(all[idx])
	}
	if len(all) < pointerCount {
		add(all[len(all)-1])
	}
	return refs
}

// Traverse walks the DAG backwards from roots in sorted BFS order: the
// frontier is kept sorted descending by the log's comparator, entries are
// emitted as popped, and parents are resolved through the entry index.
// amount < 0 traverses everything reachable; endHash stops the walk after
// emitting that entry.
func (l *Log) Traverse(roots []*entry.Entry, amount int, endHash string) ([]*entry.Entry, error) {
	stack := make([]*entry.Entry, len(roots))
	copy(stack, roots)
	if err := sorting.Sort(l.sortFn, stack); err != nil {
		return nil, err
	}
	sorting.Reverse(stack)

	traversed := make(map[string]struct{}, len(stack))
	for _, e := range stack {
		traversed[e.HashString()] = struct{}{}
	}

	var result []*entry.Entry
	count := 0

	for len(stack) > 0 && (amount < 0 || count < amount) {
		e := stack[0]
		stack = stack[1:]

		count++
		result = append(result, e)

		if e.HashString() == endHash {
			break
		}

		for _, n := range e.Next {
			parent, ok := l.entryIndex.Get(blockio.CIDString(n))
			if !ok {
				continue
			}
			key := parent.HashString()
			if _, ok := traversed[key]; ok {
				continue
			}
			traversed[key] = struct{}{}
			stack = append([]*entry.Entry{parent}, stack...)
			if err := sorting.Sort(l.sortFn, stack); err != nil {
				return nil, err
			}
			sorting.Reverse(stack)
		}
	}

	return result, nil
}

// Values returns every entry of the log in the configured total order,
// ascending.
func (l *Log) Values() ([]*entry.Entry, error) {
	heads := l.headsIndex.Slice()
	if len(heads) == 0 {
		return nil, nil
	}
	stack, err := l.Traverse(heads, -1, "")
	if err != nil {
		return nil, err
	}
	sorting.Reverse(stack)
	if err := sorting.Sort(l.sortFn, stack); err != nil {
		return nil, err
	}
	return stack, nil
}

// Heads returns the current frontier sorted descending by the configured
// order.
func (l *Log) Heads() ([]*entry.Entry, error) {
	heads := l.headsIndex.Slice()
	if err := sorting.Sort(l.sortFn, heads); err != nil {
		return nil, err
	}
	sorting.Reverse(heads)
	return heads, nil
}

// Tails returns the entries at the boundary of partial replication: entries
// whose parents are not all present in the log.
func (l *Log) Tails() []*entry.Entry {
	return FindTails(l.entryIndex.Slice())
}

// TailHashes returns the missing parent hashes referenced by the log.
func (l *Log) TailHashes() []string {
	return FindTailHashes(l.entryIndex.Slice())
}

// ToJSON returns the log manifest: the id and the head hashes sorted
// descending.
func (l *Log) ToJSON() (*logio.JSONLog, error) {
	heads, err := l.Heads()
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(heads))
	for _, h := range heads {
		hashes = append(hashes, h.HashString())
	}
	return &logio.JSONLog{ID: l.id, Heads: hashes}, nil
}

// ToBuffer returns the JSON-encoded manifest.
func (l *Log) ToBuffer() ([]byte, error) {
	jl, err := l.ToJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(jl)
}

// ToSnapshot returns a fully materialized image of the log.
func (l *Log) ToSnapshot() (*logio.Snapshot, error) {
	heads, err := l.Heads()
	if err != nil {
		return nil, err
	}
	values, err := l.Values()
	if err != nil {
		return nil, err
	}
	return &logio.Snapshot{ID: l.id, Heads: heads, Values: values}, nil
}

// ToMultihash writes the manifest to the store and returns its content
// address.
func (l *Log) ToMultihash(ctx context.Context) (cid.Cid, error) {
	heads, err := l.Heads()
	if err != nil {
		return cid.Undef, err
	}
	hashes := make([]cid.Cid, 0, len(heads))
	for _, h := range heads {
		hashes = append(hashes, h.Hash)
	}
	return logio.WriteManifest(ctx, l.storage, l.id, hashes)
}

// ToString renders the log newest-first, one line per entry. An entry that
// has direct children in the log is prefixed with └─, indented two spaces
// for each direct child beyond the first. mapper extracts the line for an
// entry; the raw payload is used when nil.
func (l *Log) ToString(mapper func(*entry.Entry) string) (string, error) {
	values, err := l.Values()
	if err != nil {
		return "", err
	}
	sorting.Reverse(values)

	var lines []string
	for _, e := range values {
		parents := entry.FindChildren(e, values)
		padding := strings.Repeat("  ", maxInt(len(parents)-1, 0))
		if len(parents) > 0 {
			padding += "└─"
		}
		line := string(e.Payload)
		if mapper != nil {
			line = mapper(e)
		}
		lines = append(lines, padding+line)
	}
	return strings.Join(lines, "\n"), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
