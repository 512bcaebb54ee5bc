package btree

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki"
	"github.com/sakuhiki-go/sakuhiki/backend"
)

// QueryKind selects one of the three bundled query shapes.
type QueryKind int

const (
	QueryEqual QueryKind = iota
	QueryPrefix
	QueryRange
)

// Query is one of Equal(key), Prefix(prefix), or Range{start, end}.
// Equal is equivalent to Prefix when the underlying extractor is
// fixed-length and len(Key) == that length.
type Query struct {
	Kind  QueryKind
	Key   []byte
	Start backend.Bound
	End   backend.Bound
}

// Equal runs the same prefix scan as Prefix. It matches only rows whose
// extracted key is exactly key when the extractor is fixed-length and
// len(key) equals that length; otherwise it matches every row whose
// stored key starts with key.
func Equal(key []byte) Query { return Query{Kind: QueryEqual, Key: key} }

// Prefix matches index rows whose extracted key has prefix as a byte
// prefix.
func Prefix(prefix []byte) Query { return Query{Kind: QueryPrefix, Key: prefix} }

// RangeQuery matches index rows whose stored key falls between start and
// end, each bound being unbounded, inclusive or exclusive as given.
func RangeQuery(start, end backend.Bound) Query { return Query{Kind: QueryRange, Start: start, End: end} }

// runQuery is the shared second half of every bundled index's Query
// method: scan the (sole) index CF per q's shape, then dereference
// each row back into objectCf via keyLen.
func runQuery(ctx context.Context, q Query, txn backend.Transaction, objectCf backend.TxCf, indexCf backend.TxCf, keyLen func([]byte) int) (sakuhiki.QueryCursor, error) {
	var raw backend.Cursor
	var err error
	switch q.Kind {
	case QueryEqual, QueryPrefix:
		raw, err = txn.ScanPrefix(ctx, indexCf, q.Key)
	case QueryRange:
		raw, err = txn.Scan(ctx, indexCf, backend.KeyRange{Start: q.Start, End: q.End})
	}
	if err != nil {
		return nil, backend.WrapCf(indexCf.Name(), err)
	}
	return sakuhiki.DerefCursor(raw, txn, objectCf, keyLen), nil
}
