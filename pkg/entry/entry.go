// Package entry implements the immutable records of the log: creation,
// canonical serialization, signing, content addressing and verification,
// including read-only support for the legacy version-0 on-wire format.
package entry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	cid "github.com/ipfs/go-cid"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
	"github.com/Mindburn-Labs/oplog/pkg/lamport"
)

// Entry is one immutable record in the log, a node in the Merkle DAG. The
// hash is a pure function of the canonical signed encoding; any mutation of
// the other fields invalidates it.
type Entry struct {
	Hash     cid.Cid
	ID       string
	Payload  []byte
	Next     []cid.Cid
	Refs     []cid.Cid
	V        uint64
	Clock    lamport.Clock
	Key      string
	Identity *identity.Identity
	Sig      string
}

// HashString returns the canonical string form of the entry's content
// address.
func (e *Entry) HashString() string {
	return blockio.CIDString(e.Hash)
}

// Create builds, signs and stores a new version-1 entry.
//
// next may contain undefined content addresses (they are dropped) and
// duplicates (they are collapsed, first occurrence wins). clock defaults to
// a zero clock under the identity's public key; refs default to none.
func Create(ctx context.Context, store blockio.Store, ident *identity.Identity, logID string, payload []byte, next []cid.Cid, clock *lamport.Clock, refs []cid.Cid, pinned bool) (*Entry, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, errmsg.ErrIdentityCreateEntry
	}
	if logID == "" {
		return nil, errmsg.ErrEntryIDRequired
	}
	if payload == nil {
		return nil, errmsg.ErrEntryDataRequired
	}
	provider := ident.Provider()
	if provider == nil {
		return nil, errmsg.ErrIdentityCreateEntry
	}

	c := lamport.New(ident.PublicKey, 0)
	if clock != nil {
		c = *clock
	}

	e := &Entry{
		ID:       logID,
		Payload:  payload,
		Next:     dedupeDefined(next),
		Refs:     dedupeDefined(refs),
		V:        1,
		Clock:    c,
		Key:      ident.PublicKey,
		Identity: ident,
	}

	signing, err := signingBytes(e)
	if err != nil {
		return nil, err
	}
	sig, err := provider.Sign(ident, signing)
	if err != nil {
		return nil, fmt.Errorf("sign entry: %w", err)
	}
	e.Sig = sig

	hash, err := ToMultihash(ctx, store, e, pinned)
	if err != nil {
		return nil, err
	}
	e.Hash = hash

	return e, nil
}

// Verify checks the entry against its key and identity: the identity
// descriptor must self-certify and carry the entry's signing key, the
// signature must cover the canonical bytes, and the content address
// recomputed from the canonical signed encoding must match the entry's
// hash.
func Verify(p identity.Provider, e *Entry) error {
	if e == nil {
		return errmsg.ErrInvalidObjectFormat
	}
	if !IsEntry(e) || e.Identity == nil {
		return errmsg.ErrInvalidObjectFormat
	}

	if e.Key != e.Identity.PublicKey {
		return fmt.Errorf("entry key %q does not match the identity public key for entry %s", e.Key, e.HashString())
	}
	if err := identity.VerifyIdentity(p, e.Identity); err != nil {
		return fmt.Errorf("verify entry %s: %w", e.HashString(), err)
	}

	signing, err := signingBytes(e)
	if err != nil {
		return err
	}
	ok, err := p.Verify(e.Sig, e.Key, signing)
	if err != nil {
		return fmt.Errorf("verify entry %s: %w", e.HashString(), err)
	}
	if !ok {
		return errmsg.ErrSignatureInvalid(e.Sig, e.HashString(), e.Key)
	}

	recomputed, err := contentAddress(e)
	if err != nil {
		return err
	}
	if !recomputed.Equals(e.Hash) {
		return errmsg.ErrSignatureInvalid(e.Sig, e.HashString(), e.Key)
	}
	return nil
}

// ToMultihash serializes the canonical signed form, writes it to the store
// and returns the content address. Version-0 entries round-trip through the
// legacy codec so their historical addresses are preserved.
func ToMultihash(ctx context.Context, store blockio.Store, e *Entry, pinned bool) (cid.Cid, error) {
	if store == nil {
		return cid.Undef, errmsg.ErrIPFSNotDefined
	}
	if e == nil || e.ID == "" || e.Payload == nil || e.Clock.ID == "" {
		return cid.Undef, errmsg.ErrInvalidObjectFormat
	}

	if e.V == 0 {
		data, err := encodeV0(e)
		if err != nil {
			return cid.Undef, err
		}
		return blockio.WriteLegacy(ctx, store, data, pinned)
	}
	return blockio.WriteCBOR(ctx, store, toDoc(e), pinned)
}

// FromMultihash fetches and decodes the entry at hash, attaching the hash to
// the returned entry. Legacy version-0 blocks are recognized by their CIDv0
// address and decoded with the legacy codec; their bare key is mapped onto a
// synthesized identity descriptor.
func FromMultihash(ctx context.Context, store blockio.Store, hash cid.Cid) (*Entry, error) {
	if store == nil {
		return nil, errmsg.ErrIPFSNotDefined
	}
	if !hash.Defined() {
		return nil, errmsg.ErrInvalidHashUndefined
	}

	var e *Entry
	var err error
	if hash.Version() == 0 {
		data, rerr := blockio.ReadLegacy(ctx, store, hash)
		if rerr != nil {
			return nil, rerr
		}
		e, err = decodeV0(data)
	} else {
		var doc entryDoc
		if rerr := blockio.ReadCBOR(ctx, store, hash, &doc); rerr != nil {
			return nil, rerr
		}
		e, err = fromDoc(&doc)
	}
	if err != nil {
		return nil, err
	}
	e.Hash = hash
	return e, nil
}

// IsEntry reports whether e carries all the fields that classify it as an
// entry: id, next, v, hash, payload and clock. Version-0 entries omit refs
// and still classify.
func IsEntry(e *Entry) bool {
	return e != nil &&
		e.ID != "" &&
		e.Next != nil &&
		e.Hash.Defined() &&
		e.Payload != nil &&
		e.Clock.ID != ""
}

// IsParent reports whether p is a direct causal parent of c.
func IsParent(p, c *Entry) bool {
	for _, n := range c.Next {
		if n.Equals(p.Hash) {
			return true
		}
	}
	return false
}

// IsEqual reports whether two entries have the same content address.
func IsEqual(a, b *Entry) bool {
	return a != nil && b != nil && a.Hash.Equals(b.Hash)
}

// Compare is the default Last-Write-Wins total order: by clock, then
// lexicographically by clock id, then by hash as the terminal tiebreak.
func Compare(a, b *Entry) (int, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("entry is not defined")
	}
	if d := lamport.Compare(a.Clock, b.Clock); d != 0 {
		return d, nil
	}
	return strings.Compare(a.HashString(), b.HashString()), nil
}

// FindChildren returns the entries in all that reference e as a direct
// parent, sorted by clock. Used only for rendering.
func FindChildren(e *Entry, all []*Entry) []*Entry {
	var children []*Entry
	for _, candidate := range all {
		if IsParent(e, candidate) {
			children = append(children, candidate)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return lamport.Compare(children[i].Clock, children[j].Clock) < 0
	})
	return children
}

// signingBytes returns the canonical encoding with hash and sig absent, the
// exact bytes the signature covers.
func signingBytes(e *Entry) ([]byte, error) {
	if e.V == 0 {
		return signingBytesV0(e)
	}
	return signingBytesV1(e)
}

// contentAddress recomputes the entry's content address from its canonical
// signed encoding without touching the store.
func contentAddress(e *Entry) (cid.Cid, error) {
	if e.V == 0 {
		return contentAddressV0(e)
	}
	return contentAddressV1(e)
}

func dedupeDefined(hashes []cid.Cid) []cid.Cid {
	out := make([]cid.Cid, 0, len(hashes))
	seen := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		if !h.Defined() {
			continue
		}
		k := h.KeyString()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, h)
	}
	return out
}
