package log

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
	"github.com/Mindburn-Labs/oplog/pkg/lamport"
)

// Join merges another log's entries into this one. Every new entry is
// checked against the access controller and its signature verified, with
// bounded parallelism; any failure aborts the whole join and leaves the
// receiver unchanged. Joins across different log identifiers are no-ops.
//
// Join is commutative, associative and idempotent with respect to the
// resulting indices and head set.
func (l *Log) Join(ctx context.Context, other *Log) (*Log, error) {
	if other == nil {
		return nil, errmsg.ErrLogNotDefined
	}
	if other.id != l.id {
		return l, nil
	}

	diff, err := Difference(ctx, other, l)
	if err != nil {
		return nil, fmt.Errorf("join failed: %w", err)
	}

	// Verify everything before mutating anything.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.joinConcurrency)
	for _, k := range diff.Keys() {
		e := diff.UnsafeGet(k)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !l.access.CanAppend(e, l.identity.Provider()) {
				id := e.Key
				if e.Identity != nil {
					id = e.Identity.ID
				}
				return errmsg.ErrKeyNotAllowed(id)
			}
			if err := entry.Verify(l.identity.Provider(), e); err != nil {
				return fmt.Errorf("unable to check signature: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nextsFromNewItems := make(map[string]struct{})
	for _, k := range diff.Keys() {
		e := diff.UnsafeGet(k)
		if _, ok := l.hashIndex.Get(k); !ok {
			l.length++
		}
		for _, n := range e.Next {
			nk := blockio.CIDString(n)
			l.nextsIndex[nk] = k
			nextsFromNewItems[nk] = struct{}{}
		}
		l.hashIndex.Set(k, e.Next)
		l.entryIndex.Set(k, e)
	}

	// Recompute the frontier: union the two head sets, drop anything a new
	// entry points at, drop anything referenced as a parent in the combined
	// log, and canonicalize.
	merged := l.headsIndex.Merge(other.headsIndex).Slice()
	var candidates []*entry.Entry
	for _, h := range merged {
		if _, ok := nextsFromNewItems[h.HashString()]; ok {
			continue
		}
		if _, ok := l.nextsIndex[h.HashString()]; ok {
			continue
		}
		candidates = append(candidates, h)
	}
	l.headsIndex = entry.NewOrderedMapFromEntries(FindHeads(candidates))

	maxTime := l.clock.Time
	for _, h := range l.headsIndex.Slice() {
		if h.Clock.Time > maxTime {
			maxTime = h.Clock.Time
		}
	}
	l.clock = lamport.New(l.clock.ID, maxTime)

	return l, nil
}

// Difference collects the entries reachable from from's heads that to does
// not hold, fetching unmaterialized entries through from's store. Entries
// belonging to a different log are ignored.
func Difference(ctx context.Context, from, to *Log) (*entry.OrderedMap, error) {
	if from == nil || to == nil {
		return entry.NewOrderedMap(), nil
	}

	stack := from.headsIndex.Keys()
	traversed := make(map[string]struct{}, len(stack))
	res := entry.NewOrderedMap()

	for len(stack) > 0 {
		hash := stack[0]
		stack = stack[1:]

		if _, ok := res.Get(hash); ok {
			continue
		}
		if _, ok := to.hashIndex.Get(hash); ok {
			continue
		}

		c, err := blockio.ParseCID(hash)
		if err != nil {
			return nil, err
		}
		e, err := from.Get(ctx, c)
		if err != nil {
			// A partial replica: the boundary of what it holds bounds the
			// difference.
			if errors.Is(err, blockio.ErrBlockNotFound) {
				continue
			}
			return nil, err
		}
		if e.ID != to.id {
			continue
		}

		res.Set(hash, e)
		for _, n := range e.Next {
			nk := blockio.CIDString(n)
			if _, ok := traversed[nk]; ok {
				continue
			}
			if _, ok := to.hashIndex.Get(nk); ok {
				continue
			}
			traversed[nk] = struct{}{}
			stack = append(stack, nk)
		}
	}

	return res, nil
}
