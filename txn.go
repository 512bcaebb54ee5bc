package sakuhiki

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// Txn is the core transaction view handed to a transaction body: a
// backend.Transaction scoped to one Datum[T]'s CFs, with Put and
// Delete fanning out to every declared index in declaration order.
type Txn[T any] struct {
	datum *Datum[T]
	raw   backend.Transaction
	cf    TxCf[T]
}

func newTxn[T any](datum *Datum[T], raw backend.Transaction, cf TxCf[T]) *Txn[T] {
	return &Txn[T]{datum: datum, raw: raw, cf: cf}
}

// Raw exposes the underlying backend.Transaction, for operations (like
// an index's own Query) that work on this Datum's CFs directly rather
// than through Txn's datum-CF methods. The transaction is scoped to
// this Datum's CFs only.
func (t *Txn[T]) Raw() backend.Transaction { return t.raw }

// DatumCf exposes the transaction-scoped handle for the primary datum
// CF, the "object CF" a query's results are dereferenced against.
func (t *Txn[T]) DatumCf() backend.TxCf { return t.cf.datumCf }

// IndexCfs exposes the transaction-scoped handle list for the i-th
// declared index (in Datum.Indexes order), the slice an Index[T,Q]'s
// own Query method expects as its indexCfs argument.
func (t *Txn[T]) IndexCfs(i int) []backend.TxCf { return t.cf.indexCfs[i] }

// CurrentMode reports the mode this transaction was opened with.
func (t *Txn[T]) CurrentMode() backend.Mode { return t.raw.CurrentMode() }

// Get returns the value stored at key, including this transaction's
// own prior writes.
func (t *Txn[T]) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	v, ok, err := t.raw.Get(ctx, t.cf.datumCf, key)
	return v, ok, backend.WrapCf(t.cf.datumCf.Name(), err)
}

// Scan returns every (key, value) pair in keys, in ascending key order.
func (t *Txn[T]) Scan(ctx context.Context, keys backend.KeyRange) (backend.Cursor, error) {
	cur, err := t.raw.Scan(ctx, t.cf.datumCf, keys)
	return cur, backend.WrapCf(t.cf.datumCf.Name(), err)
}

// ScanPrefix returns every (key, value) pair whose key has prefix as a
// byte prefix.
func (t *Txn[T]) ScanPrefix(ctx context.Context, prefix []byte) (backend.Cursor, error) {
	cur, err := t.raw.ScanPrefix(ctx, t.cf.datumCf, prefix)
	return cur, backend.WrapCf(t.cf.datumCf.Name(), err)
}

// Put stores value at key: the primary mutation lands first, then
// value and any previous value are parsed exactly once and fanned out
// to every declared index in declaration order — unindexing the old
// value (if one existed), then indexing the new one. It returns the
// previous value, if any.
//
// A parse failure aborts after the primary write but before any index
// is touched; the caller's enclosing backend transaction must still be
// rolled back by returning the error from the transaction body (P5).
func (t *Txn[T]) Put(ctx context.Context, key, value []byte) (previous []byte, hadPrevious bool, err error) {
	old, hadOld, err := t.raw.Put(ctx, t.cf.datumCf, key, value)
	if err != nil {
		return nil, false, backend.WrapCf(t.cf.datumCf.Name(), err)
	}

	newDatum, err := t.datum.FromSlice(value)
	if err != nil {
		return nil, false, &ParseError{Cf: t.cf.datumCf.Name(), ObjectKey: key, Err: err}
	}

	var oldDatum T
	if hadOld {
		oldDatum, err = t.datum.FromSlice(old)
		if err != nil {
			return nil, false, &ParseError{Cf: t.cf.datumCf.Name(), ObjectKey: key, Err: err}
		}
	}

	for i, idx := range t.datum.Indexes {
		cfs := t.cf.indexCfs[i]
		if hadOld {
			if err := idx.Unindex(ctx, key, oldDatum, t.raw, cfs); err != nil {
				return nil, false, err
			}
		}
		if err := idx.Index(ctx, key, newDatum, t.raw, cfs); err != nil {
			return nil, false, err
		}
	}
	return old, hadOld, nil
}

// Delete removes key: the primary removal lands first, then the
// removed value (if any) is parsed once and unindexed from every
// declared index in declaration order. It returns the removed value,
// if any.
func (t *Txn[T]) Delete(ctx context.Context, key []byte) (previous []byte, hadPrevious bool, err error) {
	old, hadOld, err := t.raw.Delete(ctx, t.cf.datumCf, key)
	if err != nil {
		return nil, false, backend.WrapCf(t.cf.datumCf.Name(), err)
	}
	if !hadOld {
		return nil, false, nil
	}

	oldDatum, err := t.datum.FromSlice(old)
	if err != nil {
		return nil, false, &ParseError{Cf: t.cf.datumCf.Name(), ObjectKey: key, Err: err}
	}

	for i, idx := range t.datum.Indexes {
		if err := idx.Unindex(ctx, key, oldDatum, t.raw, t.cf.indexCfs[i]); err != nil {
			return nil, false, err
		}
	}
	return old, hadOld, nil
}
