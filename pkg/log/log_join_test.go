package log_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
	"github.com/Mindburn-Labs/oplog/pkg/log"
)

// clone rebuilds an independent log instance with the same content.
func clone(t *testing.T, store blockio.Store, ident *identity.Identity, l *log.Log) *log.Log {
	t.Helper()
	snapshot, err := l.ToSnapshot()
	require.NoError(t, err)
	c, err := log.NewFromSnapshot(store, ident, snapshot, &log.Options{ID: l.ID()})
	require.NoError(t, err)
	return c
}

func TestJoinConcurrentForks(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)

	a := newLog(t, blockio.NewMemoryStore(), identA, "X")
	b := newLog(t, blockio.NewMemoryStore(), identB, "X")
	appendAll(t, a, "one", "two")
	appendAll(t, b, "hello", "world")

	_, err := a.Join(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, 4, a.Length())

	// The head set is exactly the two fork tips.
	heads, err := a.Heads()
	require.NoError(t, err)
	headPayloads := map[string]bool{}
	for _, h := range heads {
		headPayloads[string(h.Payload)] = true
	}
	assert.Equal(t, map[string]bool{"two": true, "world": true}, headPayloads)

	// Values ascend by (time, clock id, hash).
	values, err := a.Values()
	require.NoError(t, err)
	require.Len(t, values, 4)
	assert.Equal(t, 1, values[0].Clock.Time)
	assert.Equal(t, 1, values[1].Clock.Time)
	assert.Equal(t, 2, values[2].Clock.Time)
	assert.Equal(t, 2, values[3].Clock.Time)
	assert.LessOrEqual(t, values[0].Clock.ID, values[1].Clock.ID)
	assert.LessOrEqual(t, values[2].Clock.ID, values[3].Clock.ID)

	// The clock advanced to the maximum head time.
	assert.Equal(t, 2, a.Clock().Time)
}

func TestJoinDisjointIDsIsNoOp(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)

	a := newLog(t, blockio.NewMemoryStore(), identA, "A")
	b := newLog(t, blockio.NewMemoryStore(), identB, "B")
	appendAll(t, a, "one")
	appendAll(t, b, "hello")

	before := hashesOf(t, a)
	_, err := a.Join(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, before, hashesOf(t, a))
	assert.Equal(t, 1, a.Length())
}

func TestJoinNilLog(t *testing.T) {
	ident := seededIdentity(t, "userA", 1)
	a := newLog(t, blockio.NewMemoryStore(), ident, "A")
	_, err := a.Join(context.Background(), nil)
	assert.ErrorIs(t, err, errmsg.ErrLogNotDefined)
}

func TestJoinRejectsTamperedEntry(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)

	a := newLog(t, blockio.NewMemoryStore(), identA, "X")
	b := newLog(t, blockio.NewMemoryStore(), identB, "X")
	appendAll(t, a, "mine")
	appendAll(t, b, "hello", "world")

	// Tamper with an already-signed entry on the other replica.
	values, err := b.Values()
	require.NoError(t, err)
	values[0].Payload = []byte("poison")

	before := hashesOf(t, a)
	_, err = a.Join(ctx, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not validate signature")

	assert.Equal(t, before, hashesOf(t, a))
	assert.Equal(t, 1, a.Length())
}

func TestJoinPermissionDenied(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)

	a, err := log.New(blockio.NewMemoryStore(), identA, &log.Options{
		ID:     "X",
		Access: denyPayload("two"),
	})
	require.NoError(t, err)
	b := newLog(t, blockio.NewMemoryStore(), identB, "X")
	appendAll(t, b, "one", "two")

	_, err = a.Join(ctx, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "userB" is not allowed to write to the log`)
	assert.Equal(t, 0, a.Length())
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)

	a := newLog(t, blockio.NewMemoryStore(), identA, "X")
	b := newLog(t, blockio.NewMemoryStore(), identB, "X")
	appendAll(t, a, "one", "two")
	appendAll(t, b, "hello")

	_, err := a.Join(ctx, b)
	require.NoError(t, err)
	once := hashesOf(t, a)
	onceLength := a.Length()

	_, err = a.Join(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, once, hashesOf(t, a))
	assert.Equal(t, onceLength, a.Length())
}

func TestJoinIsCommutative(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)
	store := blockio.NewMemoryStore()

	a := newLog(t, store, identA, "X")
	b := newLog(t, store, identB, "X")
	appendAll(t, a, "one", "two")
	appendAll(t, b, "hello", "world")

	ab := clone(t, store, identA, a)
	_, err := ab.Join(ctx, b)
	require.NoError(t, err)

	ba := clone(t, store, identB, b)
	_, err = ba.Join(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, hashesOf(t, ab), hashesOf(t, ba))
}

func TestJoinIsAssociative(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)
	identC := seededIdentity(t, "userC", 3)
	store := blockio.NewMemoryStore()

	a := newLog(t, store, identA, "X")
	b := newLog(t, store, identB, "X")
	c := newLog(t, store, identC, "X")
	appendAll(t, a, "a1", "a2")
	appendAll(t, b, "b1")
	appendAll(t, c, "c1", "c2", "c3")

	// (a ⨝ b) ⨝ c
	left := clone(t, store, identA, a)
	_, err := left.Join(ctx, b)
	require.NoError(t, err)
	_, err = left.Join(ctx, c)
	require.NoError(t, err)

	// a ⨝ (b ⨝ c)
	bc := clone(t, store, identB, b)
	_, err = bc.Join(ctx, c)
	require.NoError(t, err)
	right := clone(t, store, identA, a)
	_, err = right.Join(ctx, bc)
	require.NoError(t, err)

	assert.Equal(t, hashesOf(t, left), hashesOf(t, right))
}

func TestJoinPreservesHashesAndResolvableNexts(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)

	a := newLog(t, blockio.NewMemoryStore(), identA, "X")
	b := newLog(t, blockio.NewMemoryStore(), identB, "X")
	appendAll(t, a, "one", "two")
	appendAll(t, b, "hello", "world")

	_, err := a.Join(ctx, b)
	require.NoError(t, err)

	values, err := a.Values()
	require.NoError(t, err)

	known := map[string]bool{}
	for _, e := range values {
		known[e.HashString()] = true
	}
	for _, e := range values {
		assert.NoError(t, entry.Verify(identA.Provider(), e), "hash must be intact after join")
		for _, n := range e.Next {
			assert.True(t, known[blockio.CIDString(n)], "every next must still resolve")
		}
	}
}

func TestDifference(t *testing.T) {
	ctx := context.Background()
	identA := seededIdentity(t, "userA", 1)
	identB := seededIdentity(t, "userB", 2)

	a := newLog(t, blockio.NewMemoryStore(), identA, "X")
	b := newLog(t, blockio.NewMemoryStore(), identB, "X")
	appendAll(t, a, "one")
	appendAll(t, b, "hello", "world")

	diff, err := log.Difference(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, 2, diff.Len())

	var got []string
	for _, k := range diff.Keys() {
		got = append(got, string(diff.UnsafeGet(k).Payload))
	}
	sort.Strings(got)
	assert.Equal(t, []string{"hello", "world"}, got)

	// Nothing of a is missing from a.
	same, err := log.Difference(ctx, a, a)
	require.NoError(t, err)
	assert.Equal(t, 0, same.Len())
}
