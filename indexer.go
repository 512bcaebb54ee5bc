package sakuhiki

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// Indexer describes how to maintain the projection of a T into one or
// more index column families it owns.
type Indexer[T any] interface {
	// Cfs lists the column families this indexer owns, in the order
	// its Index, Unindex and Rebuild expect to receive the
	// corresponding backend.TxCf values.
	Cfs() []string

	// Index writes the forward projection of datum, stored at
	// objectKey in the owning Datum's CF, into cfs.
	Index(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf) error

	// Unindex removes the projection a prior Index call wrote for
	// datum at objectKey.
	Unindex(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf) error

	// Rebuild re-establishes this index's contents as the functional
	// image of every row currently in datumCf (I1). txn must be in
	// IndexRebuilding mode and must already hold an exclusive lock on
	// datumCf. parse deserializes one stored row; callers pass the
	// owning Datum[T]'s FromSlice.
	Rebuild(ctx context.Context, txn backend.Transaction, indexCfs []backend.TxCf, datumCf backend.TxCf, parse func([]byte) (T, error)) error
}

// DefaultRebuild implements the canonical rebuild algorithm: verify the
// transaction is in IndexRebuilding mode, clear every index CF, scan
// datumCf from the start, and re-run idx.Index over every parsed row in
// ascending key order. Bundled index kinds call this from their own
// Rebuild; it is exported so indexers outside this module can reuse it
// rather than reimplement the clear-and-rescan dance.
func DefaultRebuild[T any](ctx context.Context, idx Indexer[T], txn backend.Transaction, indexCfs []backend.TxCf, datumCf backend.TxCf, parse func([]byte) (T, error)) error {
	if txn.CurrentMode() != backend.IndexRebuilding {
		return &backend.InvalidTransactionModeError{Expected: backend.IndexRebuilding, Actual: txn.CurrentMode()}
	}
	for _, cf := range indexCfs {
		if err := txn.Clear(ctx, cf); err != nil {
			return backend.WrapCf(cf.Name(), err)
		}
	}
	cur, err := txn.Scan(ctx, datumCf, backend.KeyRange{})
	if err != nil {
		return backend.WrapCf(datumCf.Name(), err)
	}
	defer cur.Close()
	for cur.Next(ctx) {
		entry := cur.Entry()
		datum, perr := parse(entry.Value)
		if perr != nil {
			return &ParseError{Cf: datumCf.Name(), ObjectKey: entry.Key, Err: perr}
		}
		if err := idx.Index(ctx, entry.Key, datum, txn, indexCfs); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return backend.WrapCf(datumCf.Name(), err)
	}
	return nil
}
