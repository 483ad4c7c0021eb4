package log

import (
	"sort"
	"strings"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/entry"
)

// FindHeads returns the entries not referenced by any other entry's next
// pointers, sorted lexicographically by clock id for deterministic
// presentation.
func FindHeads(entries []*entry.Entry) []*entry.Entry {
	referenced := make(map[string]struct{})
	for _, e := range entries {
		if e == nil {
			continue
		}
		for _, n := range e.Next {
			referenced[blockio.CIDString(n)] = struct{}{}
		}
	}

	var heads []*entry.Entry
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e == nil {
			continue
		}
		key := e.HashString()
		if _, ok := referenced[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		heads = append(heads, e)
	}

	sort.SliceStable(heads, func(i, j int) bool {
		return strings.Compare(heads[i].Clock.ID, heads[j].Clock.ID) < 0
	})
	return heads
}

// FindTails returns the entries that bound partial replication: those with
// no parents at all, and those referencing at least one parent that is not
// present in entries. The result is deduplicated by hash and sorted by the
// default comparator.
func FindTails(entries []*entry.Entry) []*entry.Entry {
	hashes := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		hashes[e.HashString()] = struct{}{}
	}

	var tails []*entry.Entry
	seen := make(map[string]struct{})
	add := func(e *entry.Entry) {
		key := e.HashString()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		tails = append(tails, e)
	}

	for _, e := range entries {
		if len(e.Next) == 0 {
			add(e)
			continue
		}
		for _, n := range e.Next {
			if _, ok := hashes[blockio.CIDString(n)]; !ok {
				add(e)
				break
			}
		}
	}

	sort.SliceStable(tails, func(i, j int) bool {
		d, err := entry.Compare(tails[i], tails[j])
		return err == nil && d < 0
	})
	return tails
}

// FindTailHashes returns the parent hashes referenced by some entry but not
// present in entries, in a stable reverse-first-observed order.
func FindTailHashes(entries []*entry.Entry) []string {
	hashes := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		hashes[e.HashString()] = struct{}{}
	}

	var res []string
	seen := make(map[string]struct{})
	for _, e := range entries {
		for i := len(e.Next) - 1; i >= 0; i-- {
			key := blockio.CIDString(e.Next[i])
			if _, ok := hashes[key]; ok {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			res = append([]string{key}, res...)
		}
	}
	return res
}
