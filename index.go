package sakuhiki

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// QueryEntry is one result of an Index[T,Q] query: the primary object
// key an index row points at, and that object's stored value.
type QueryEntry struct {
	ObjectKey []byte
	Value     []byte
}

// QueryCursor is a lazy, cancelable sequence of QueryEntry values,
// mirroring backend.Cursor's Next/Entry/Err/Close shape.
type QueryCursor interface {
	Next(ctx context.Context) bool
	Entry() QueryEntry
	Err() error
	Close() error
}

// Index is an Indexer that additionally supports queries of type Q.
type Index[T any, Q any] interface {
	Indexer[T]

	// Query executes q against this index's CFs and dereferences each
	// matching row back into objectCf. A row whose derived object key
	// is absent from objectCf surfaces as *IndexConsistencyError from
	// the cursor, rather than being skipped.
	Query(ctx context.Context, q Q, txn backend.Transaction, objectCf backend.TxCf, indexCfs []backend.TxCf) (QueryCursor, error)
}

// DerefCursor adapts a raw index-CF cursor into a QueryCursor: for each
// stored index key, keyLen reports how many leading bytes are the
// extracted index key (the remainder is the object key), and the
// object key is looked up in objectCf. This is the shared second half
// of every bundled query (Prefix, Range, Equal): scan the index CF,
// then dereference.
func DerefCursor(raw backend.Cursor, txn backend.Transaction, objectCf backend.TxCf, keyLen func(indexKey []byte) int) QueryCursor {
	return &derefCursor{raw: raw, txn: txn, objectCf: objectCf, keyLen: keyLen}
}

type derefCursor struct {
	raw      backend.Cursor
	txn      backend.Transaction
	objectCf backend.TxCf
	keyLen   func([]byte) int
	cur      QueryEntry
	err      error
}

func (c *derefCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.raw.Next(ctx) {
		c.err = c.raw.Err()
		return false
	}
	entry := c.raw.Entry()
	n := c.keyLen(entry.Key)
	objectKey := entry.Key[n:]
	value, ok, err := c.txn.Get(ctx, c.objectCf, objectKey)
	if err != nil {
		c.err = backend.WrapCf(c.objectCf.Name(), err)
		return false
	}
	if !ok {
		c.err = &IndexConsistencyError{ObjectCf: c.objectCf.Name(), ObjectKey: append([]byte(nil), objectKey...)}
		return false
	}
	c.cur = QueryEntry{ObjectKey: objectKey, Value: value}
	return true
}

func (c *derefCursor) Entry() QueryEntry { return c.cur }
func (c *derefCursor) Err() error        { return c.err }
func (c *derefCursor) Close() error      { return c.raw.Close() }
