package log

import (
	cid "github.com/ipfs/go-cid"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/entry"
)

// IteratorOptions bound the window an iteration yields.
//
// The start set is LTE (those entries, inclusive), or LT (strictly after:
// traversal starts from their next pointers), or the current heads. The end
// is GTE (inclusive) or GT (exclusive). Amount caps the number of yielded
// entries, counted from the end of the window when an end bound is set.
type IteratorOptions struct {
	GT     cid.Cid
	GTE    cid.Cid
	LT     []cid.Cid
	LTE    []cid.Cid
	Amount *int
}

// Iterator traverses a bounded window of the log and sends the entries to
// output in traversal order (newest first). The channel is closed when the
// iteration ends; iterations are single-pass and finite.
func (l *Log) Iterator(opts IteratorOptions, output chan<- *entry.Entry) error {
	defer close(output)

	amount := -1
	if opts.Amount != nil {
		if *opts.Amount == 0 {
			return nil
		}
		amount = *opts.Amount
	}

	start, err := l.iteratorStart(opts)
	if err != nil {
		return err
	}

	endHash := ""
	if opts.GTE.Defined() {
		endHash = blockio.CIDString(opts.GTE)
	} else if opts.GT.Defined() {
		endHash = blockio.CIDString(opts.GT)
	}

	count := -1
	if endHash == "" && opts.Amount != nil {
		count = amount
	}

	entries, err := l.Traverse(start, count, endHash)
	if err != nil {
		return err
	}

	// The exclusive lower bound is popped after traversal.
	if opts.GT.Defined() && len(entries) > 0 {
		entries = entries[:len(entries)-1]
	}

	if (opts.GT.Defined() || opts.GTE.Defined()) && amount > -1 && len(entries) > amount {
		entries = entries[len(entries)-amount:]
	}

	for _, e := range entries {
		output <- e
	}
	return nil
}

// iteratorStart resolves the start set: lte entries verbatim, lt entries'
// parents, or the heads.
func (l *Log) iteratorStart(opts IteratorOptions) ([]*entry.Entry, error) {
	switch {
	case len(opts.LTE) > 0:
		start := make([]*entry.Entry, 0, len(opts.LTE))
		for _, h := range opts.LTE {
			e, ok := l.entryIndex.Get(blockio.CIDString(h))
			if !ok {
				continue
			}
			start = append(start, e)
		}
		return start, nil
	case len(opts.LT) > 0:
		// lt is exclusive: start from the given entries' next pointers.
		var start []*entry.Entry
		seen := make(map[string]struct{})
		for _, h := range opts.LT {
			e, ok := l.entryIndex.Get(blockio.CIDString(h))
			if !ok {
				continue
			}
			for _, n := range e.Next {
				key := blockio.CIDString(n)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				if parent, ok := l.entryIndex.Get(key); ok {
					start = append(start, parent)
				}
			}
		}
		return start, nil
	default:
		return l.headsIndex.Slice(), nil
	}
}
