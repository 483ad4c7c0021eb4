// Package sorting provides the total orders used to present log entries.
// Every comparator returns -1, 0 or +1 and may fail, which lets the NoZeroes
// guard abort a comparison of forged or unauthored entries.
package sorting

import (
	"sort"
	"strings"

	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
	"github.com/Mindburn-Labs/oplog/pkg/lamport"
)

// Comparator is a three-way total order over entries.
type Comparator func(a, b *entry.Entry) (int, error)

// ByClocks compares by Lamport clock (time, then clock id) and delegates
// equal clocks to the tiebreaker.
func ByClocks(a, b *entry.Entry, tiebreaker Comparator) (int, error) {
	if d := lamport.Compare(a.Clock, b.Clock); d != 0 {
		return d, nil
	}
	return tiebreaker(a, b)
}

// ByClockID compares lexicographically by clock id and delegates equal ids
// to the tiebreaker.
func ByClockID(a, b *entry.Entry, tiebreaker Comparator) (int, error) {
	if d := strings.Compare(a.Clock.ID, b.Clock.ID); d != 0 {
		return d, nil
	}
	return tiebreaker(a, b)
}

// ByEntryHash compares lexicographically by content address. This is the
// terminal tiebreak: it never returns 0 for distinct entries.
func ByEntryHash(a, b *entry.Entry) (int, error) {
	return strings.Compare(a.HashString(), b.HashString()), nil
}

// LastWriteWins is the default order: by clock, then by hash.
func LastWriteWins(a, b *entry.Entry) (int, error) {
	return ByClocks(a, b, ByEntryHash)
}

// NoZeroes wraps a comparator with a guard against comparing two entries
// that both have clock time 0 under the same clock id. Such a pair is an
// unauthored collision: it indicates a bug in entry creation or foreign
// data injected into the log, and the comparison is aborted.
func NoZeroes(fn Comparator) Comparator {
	return func(a, b *entry.Entry) (int, error) {
		if a.Clock.Time == 0 && b.Clock.Time == 0 && a.Clock.ID == b.Clock.ID {
			return 0, errmsg.ErrZeroTimeCollision(a.Clock.ID)
		}
		return fn(a, b)
	}
}

// Sort stably sorts entries ascending by fn, in place.
func Sort(fn Comparator, entries []*entry.Entry) error {
	var sortErr error
	sort.SliceStable(entries, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		d, err := fn(entries[i], entries[j])
		if err != nil {
			sortErr = err
			return false
		}
		return d < 0
	})
	return sortErr
}

// Reverse reverses entries in place.
func Reverse(entries []*entry.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
