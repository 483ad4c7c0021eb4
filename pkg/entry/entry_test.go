package entry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	cid "github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
	"github.com/Mindburn-Labs/oplog/pkg/lamport"
)

func seededIdentity(t *testing.T, id string, seedByte byte) *identity.Identity {
	t.Helper()
	ident, err := identity.NewEd25519Provider().CreateIdentityFromSeed(id, bytes.Repeat([]byte{seedByte}, 32))
	require.NoError(t, err)
	return ident
}

func TestCreateValidations(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	_, err := Create(ctx, nil, ident, "A", []byte("hello"), nil, nil, nil, false)
	assert.ErrorIs(t, err, errmsg.ErrIPFSNotDefined)

	_, err = Create(ctx, store, nil, "A", []byte("hello"), nil, nil, nil, false)
	assert.ErrorIs(t, err, errmsg.ErrIdentityCreateEntry)

	_, err = Create(ctx, store, ident, "", []byte("hello"), nil, nil, nil, false)
	assert.ErrorIs(t, err, errmsg.ErrEntryIDRequired)

	_, err = Create(ctx, store, ident, "A", nil, nil, nil, nil, false)
	assert.ErrorIs(t, err, errmsg.ErrEntryDataRequired)
}

func TestCreateDefaults(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e, err := Create(ctx, store, ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)

	assert.Equal(t, "A", e.ID)
	assert.Equal(t, []byte("hello"), e.Payload)
	assert.Empty(t, e.Next)
	assert.Empty(t, e.Refs)
	assert.Equal(t, uint64(1), e.V)
	assert.Equal(t, ident.PublicKey, e.Clock.ID)
	assert.Equal(t, 0, e.Clock.Time)
	assert.Equal(t, ident.PublicKey, e.Key)
	assert.NotEmpty(t, e.Sig)
	assert.True(t, e.Hash.Defined())
	assert.True(t, strings.HasPrefix(e.HashString(), "zdpu"))
}

func TestCreateIsDeterministic(t *testing.T) {
	ctx := context.Background()
	ident := seededIdentity(t, "userA", 1)

	e1, err := Create(ctx, blockio.NewMemoryStore(), ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)
	e2, err := Create(ctx, blockio.NewMemoryStore(), ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)

	assert.Equal(t, e1.HashString(), e2.HashString())
	assert.Equal(t, e1.Sig, e2.Sig)

	e3, err := Create(ctx, blockio.NewMemoryStore(), ident, "A", []byte("hello world"), nil, nil, nil, false)
	require.NoError(t, err)
	assert.NotEqual(t, e1.HashString(), e3.HashString())
}

func TestCreateChainAdvancesAddress(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e1, err := Create(ctx, store, ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)

	clock := lamport.New(ident.PublicKey, 1)
	e2, err := Create(ctx, store, ident, "A", []byte("hello again"), []cid.Cid{e1.Hash}, &clock, nil, false)
	require.NoError(t, err)

	assert.NotEqual(t, e1.HashString(), e2.HashString())
	assert.True(t, IsParent(e1, e2))
	assert.Equal(t, 1, e2.Clock.Time)
}

func TestCreateNormalizesNext(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e1, err := Create(ctx, store, ident, "A", []byte("one"), nil, nil, nil, false)
	require.NoError(t, err)

	// Undefined entries are dropped and duplicates collapsed.
	next := []cid.Cid{e1.Hash, cid.Undef, e1.Hash}
	e2, err := Create(ctx, store, ident, "A", []byte("two"), next, nil, nil, false)
	require.NoError(t, err)
	require.Len(t, e2.Next, 1)
	assert.True(t, e2.Next[0].Equals(e1.Hash))
}

func TestToMultihashInvalidObject(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()

	_, err := ToMultihash(ctx, store, &Entry{}, false)
	assert.ErrorIs(t, err, errmsg.ErrInvalidObjectFormat)
}

func TestFromMultihashRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e1, err := Create(ctx, store, ident, "A", []byte("one"), nil, nil, nil, false)
	require.NoError(t, err)
	clock := lamport.New(ident.PublicKey, 1)
	e2, err := Create(ctx, store, ident, "A", []byte("two"), []cid.Cid{e1.Hash}, &clock, []cid.Cid{e1.Hash}, false)
	require.NoError(t, err)

	got, err := FromMultihash(ctx, store, e2.Hash)
	require.NoError(t, err)

	assert.Equal(t, e2.ID, got.ID)
	assert.Equal(t, e2.Payload, got.Payload)
	assert.Equal(t, e2.V, got.V)
	assert.Equal(t, e2.Clock, got.Clock)
	assert.Equal(t, e2.Key, got.Key)
	assert.Equal(t, e2.Sig, got.Sig)
	assert.Equal(t, e2.HashString(), got.HashString())
	require.Len(t, got.Next, 1)
	assert.True(t, got.Next[0].Equals(e1.Hash))
	require.NotNil(t, got.Identity)
	assert.Equal(t, ident.ID, got.Identity.ID)
	assert.Equal(t, ident.PublicKey, got.Identity.PublicKey)
}

func TestFromMultihashUndefined(t *testing.T) {
	_, err := FromMultihash(context.Background(), blockio.NewMemoryStore(), cid.Undef)
	assert.ErrorIs(t, err, errmsg.ErrInvalidHashUndefined)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e, err := Create(ctx, store, ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)
	assert.NoError(t, Verify(ident.Provider(), e))
}

func TestVerifyTamperedPayload(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e, err := Create(ctx, store, ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)

	e.Payload = []byte("tampered")
	err = Verify(ident.Provider(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not validate signature")
}

func TestVerifyRejectsMismatchedIdentityKey(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)

	e, err := Create(ctx, store, identA, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)

	// An entry whose signing key is not the key its descriptor certifies
	// must not verify.
	forged := *e
	forged.Key = identB.PublicKey
	err = Verify(identA.Provider(), &forged)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match the identity public key")
}

func TestVerifyRejectsForgedIdentityDescriptor(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e, err := Create(ctx, store, ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)

	// Rewriting the descriptor's id breaks its self-certification.
	desc := *e.Identity
	desc.ID = "admin"
	forged := *e
	forged.Identity = &desc
	assert.Error(t, Verify(ident.Provider(), &forged))
}

func TestVerifyRejectsMissingIdentity(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e, err := Create(ctx, store, ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)

	stripped := *e
	stripped.Identity = nil
	assert.ErrorIs(t, Verify(ident.Provider(), &stripped), errmsg.ErrInvalidObjectFormat)
}

func TestVerifyWrongHash(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e1, err := Create(ctx, store, ident, "A", []byte("one"), nil, nil, nil, false)
	require.NoError(t, err)
	e2, err := Create(ctx, store, ident, "A", []byte("two"), nil, nil, nil, false)
	require.NoError(t, err)

	// A valid signature under the wrong content address must not verify.
	forged := *e1
	forged.Hash = e2.Hash
	assert.Error(t, Verify(ident.Provider(), &forged))
}

func TestIsEntry(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e, err := Create(ctx, store, ident, "A", []byte("hello"), nil, nil, nil, false)
	require.NoError(t, err)
	assert.True(t, IsEntry(e))

	assert.False(t, IsEntry(nil))
	assert.False(t, IsEntry(&Entry{}))

	noHash := *e
	noHash.Hash = cid.Undef
	assert.False(t, IsEntry(&noHash))

	noPayload := *e
	noPayload.Payload = nil
	assert.False(t, IsEntry(&noPayload))
}

func TestIsEqualAndCompare(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	c1 := lamport.New("A", 1)
	c2 := lamport.New("A", 2)
	e1, err := Create(ctx, store, ident, "A", []byte("one"), nil, &c1, nil, false)
	require.NoError(t, err)
	e2, err := Create(ctx, store, ident, "A", []byte("two"), nil, &c2, nil, false)
	require.NoError(t, err)

	assert.True(t, IsEqual(e1, e1))
	assert.False(t, IsEqual(e1, e2))

	d, err := Compare(e1, e2)
	require.NoError(t, err)
	assert.Equal(t, -1, d)
}

func TestFindChildren(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	root, err := Create(ctx, store, ident, "A", []byte("root"), nil, nil, nil, false)
	require.NoError(t, err)
	c1 := lamport.New(ident.PublicKey, 2)
	child1, err := Create(ctx, store, ident, "A", []byte("child1"), []cid.Cid{root.Hash}, &c1, nil, false)
	require.NoError(t, err)
	c2 := lamport.New(ident.PublicKey, 1)
	child2, err := Create(ctx, store, ident, "A", []byte("child2"), []cid.Cid{root.Hash}, &c2, nil, false)
	require.NoError(t, err)

	children := FindChildren(root, []*Entry{child1, child2, root})
	require.Len(t, children, 2)
	// Sorted by clock: child2 (time 1) before child1 (time 2).
	assert.Equal(t, child2.HashString(), children[0].HashString())
	assert.Equal(t, child1.HashString(), children[1].HashString())
}

func TestPinnedCreate(t *testing.T) {
	ctx := context.Background()
	store := blockio.NewMemoryStore()
	ident := seededIdentity(t, "userA", 1)

	e, err := Create(ctx, store, ident, "A", []byte("hello"), nil, nil, nil, true)
	require.NoError(t, err)
	assert.True(t, store.Pinned(e.Hash))
}
