package ddbkv

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

func TestItemKeyDisambiguatesCfAndKey(t *testing.T) {
	// Without a separator, cf="ab",key="c" and cf="a",key="bc" would
	// collide; itemKey's NUL separator must keep them apart.
	a := itemKey("ab", []byte("c"))
	b := itemKey("a", []byte("bc"))
	assert.NotEqual(t, a, b)
}

func TestTooManyWritesErrorMessage(t *testing.T) {
	err := &TooManyWritesError{Count: 150}
	assert.Contains(t, err.Error(), "150")
	assert.Contains(t, err.Error(), "100")
}

func TestLockItemCarriesLockKeyAttributes(t *testing.T) {
	item := lockItem("my-cf")
	key := lockKey("my-cf")
	for k, v := range key {
		assert.Equal(t, v, item[k])
	}
	val, ok := item[attrValue].(*types.AttributeValueMemberB)
	require.True(t, ok)
	assert.Empty(t, val.Value)

	pk, ok := item[attrPK].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, lockPK, pk.Value)
}

// TestCommitNoopOnNoBufferedWrites verifies a transaction with no
// buffered writes never touches the DynamoDB client at commit (the
// backend field stays nil throughout, which would panic if dereferenced).
func TestCommitNoopOnNoBufferedWrites(t *testing.T) {
	txn := &transaction{writes: map[string]*writeOp{}}
	require.NoError(t, txn.commit(context.Background()))
}

// TestCommitRejectsOverCapacityWithoutCallingDynamoDB verifies the
// TooManyWritesError path is taken before any client call, for the same
// reason as above.
func TestCommitRejectsOverCapacityWithoutCallingDynamoDB(t *testing.T) {
	writes := make(map[string]*writeOp, maxTransactItems+1)
	for i := 0; i < maxTransactItems+1; i++ {
		writes[itemKey("cf", []byte{byte(i)})] = &writeOp{cf: "cf", key: []byte{byte(i)}, value: []byte("v")}
	}
	txn := &transaction{writes: writes}
	err := txn.commit(context.Background())
	require.Error(t, err)
	var tooMany *TooManyWritesError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, maxTransactItems+1, tooMany.Count)
}

// TestGetPrefersBufferedWriteOverNetwork verifies read-your-own-writes:
// once a key has a buffered write, Get never reaches the (nil) client.
func TestGetPrefersBufferedWriteOverNetwork(t *testing.T) {
	cf := cfHandle{name: "cf"}
	txn := &transaction{writes: map[string]*writeOp{
		itemKey("cf", []byte("k")): {cf: "cf", key: []byte("k"), value: []byte("v1")},
	}}
	val, ok, err := txn.Get(context.Background(), cf, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(val))
}

func TestGetSeesOwnTombstoneOverNetwork(t *testing.T) {
	cf := cfHandle{name: "cf"}
	txn := &transaction{writes: map[string]*writeOp{
		itemKey("cf", []byte("k")): {cf: "cf", key: []byte("k"), deleted: true},
	}}
	_, ok, err := txn.Get(context.Background(), cf, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

// exhaustedDdbCursor simulates a ddbCursor whose DynamoDB-backed partition
// has already been fully drained, so mergeCursor.Next never calls
// fetchPage (and hence never touches the nil client).
func exhaustedDdbCursor() *ddbCursor {
	return &ddbCursor{done: true, startedScan: true}
}

func TestMergeCursorYieldsOverlayWritesInKeyOrder(t *testing.T) {
	overlay := []backend.Entry{
		{Key: []byte("a"), Value: []byte("va")},
		{Key: []byte("b"), Value: []byte("vb")},
	}
	m := &mergeCursor{ddb: exhaustedDdbCursor(), overlay: overlay}

	ctx := context.Background()
	var got []string
	for m.Next(ctx) {
		got = append(got, string(m.Entry().Key))
	}
	require.NoError(t, m.Err())
	assert.Equal(t, []string{"a", "b"}, got)
}

// TestMergeCursorSuppressesTombstonedOverlayEntries verifies a
// buffered-delete overlay entry (Value == nil) is skipped rather than
// surfaced as a result, since there is nothing underneath it to reveal
// (the simulated DB partition is empty).
func TestMergeCursorSuppressesTombstonedOverlayEntries(t *testing.T) {
	overlay := []backend.Entry{
		{Key: []byte("a"), Value: nil},
		{Key: []byte("b"), Value: []byte("vb")},
	}
	m := &mergeCursor{ddb: exhaustedDdbCursor(), overlay: overlay}

	ctx := context.Background()
	var got []string
	for m.Next(ctx) {
		got = append(got, string(m.Entry().Key))
	}
	require.NoError(t, m.Err())
	assert.Equal(t, []string{"b"}, got)
}

// TestMergeCursorOverlayTakesPrecedenceOnSharedKey verifies that when
// both the overlay and the DB-sourced stream would yield the same key,
// the overlay's value wins (read-your-own-writes over a just-committed
// value the transaction has since overwritten).
func TestMergeCursorOverlayTakesPrecedenceOnSharedKey(t *testing.T) {
	dbCursor := &ddbCursor{
		done:        true,
		startedScan: true,
		buf:         []backend.Entry{{Key: []byte("a"), Value: []byte("stale")}},
	}
	overlay := []backend.Entry{{Key: []byte("a"), Value: []byte("fresh")}}
	m := &mergeCursor{ddb: dbCursor, overlay: overlay}

	ctx := context.Background()
	require.True(t, m.Next(ctx))
	assert.Equal(t, "fresh", string(m.Entry().Value))
	require.False(t, m.Next(ctx))
}
