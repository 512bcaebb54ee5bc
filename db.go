package sakuhiki

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// DB owns an open backend.Backend and is the entry point for scoped,
// indexed transactions. Construct one via Builder.Build, not directly.
type DB struct {
	backend backend.Backend
}

// Close releases the underlying backend's resources. Safe to call once
// all transactions have completed.
func (db *DB) Close() error { return db.backend.Close() }

// CfHandle resolves datum.CF and every CF named by datum.Indexes (in
// declaration order) into the database-scoped handle bundle a
// Transaction call needs. Generic methods aren't expressible on a
// non-generic receiver, so this is a package-level function rather
// than a DB method.
func CfHandle[T any](ctx context.Context, db *DB, datum *Datum[T]) (Cf[T], error) {
	datumCf, err := db.backend.CfHandle(ctx, datum.CF)
	if err != nil {
		return Cf[T]{}, err
	}
	indexCfs := make([][]backend.Cf, len(datum.Indexes))
	for i, idx := range datum.Indexes {
		names := idx.Cfs()
		cfs := make([]backend.Cf, len(names))
		for j, name := range names {
			cf, err := db.backend.CfHandle(ctx, name)
			if err != nil {
				return Cf[T]{}, err
			}
			cfs[j] = cf
		}
		indexCfs[i] = cfs
	}
	return Cf[T]{datumCf: datumCf, indexCfs: indexCfs}, nil
}

// Transaction linearizes cf into [datumCf, indexCfs...]* order
// (iterating index groups in declaration order), opens one backend
// transaction over the flattened list, and invokes body with a Txn[T]
// reconstructed from the backend's transaction-scoped handles in that
// same order. The transaction commits iff body returns nil.
func Transaction[T any](ctx context.Context, db *DB, mode backend.Mode, datum *Datum[T], cf Cf[T], body func(ctx context.Context, txn *Txn[T]) error) error {
	flat := flattenCf(cf)
	return db.backend.Transaction(ctx, mode, flat, func(ctx context.Context, raw backend.Transaction, txCfs []backend.TxCf) error {
		txCf := unflattenTxCf(cf, txCfs)
		return body(ctx, newTxn(datum, raw, txCf))
	})
}

// RebuildIndex opens a single IndexRebuilding transaction over idx's
// own CFs plus datum.CF, takes an exclusive lock on the datum CF for
// the duration of the rebuild (I5), and runs idx.Rebuild. Which
// concurrent writers to datum.CF wait for this transaction depends on
// the backend's TakeExclusiveLock: memkv serializes every writing
// transaction, while badgerkv and ddbkv exclude only other exclusive
// lock holders. Concurrent readers proceed under the backend's
// isolation.
func RebuildIndex[T any](ctx context.Context, db *DB, datum *Datum[T], idx Indexer[T]) error {
	datumCf, err := db.backend.CfHandle(ctx, datum.CF)
	if err != nil {
		return err
	}
	names := idx.Cfs()
	cfs := make([]backend.Cf, 0, len(names)+1)
	cfs = append(cfs, datumCf)
	for _, name := range names {
		h, err := db.backend.CfHandle(ctx, name)
		if err != nil {
			return err
		}
		cfs = append(cfs, h)
	}
	return db.backend.Transaction(ctx, backend.IndexRebuilding, cfs, func(ctx context.Context, raw backend.Transaction, txCfs []backend.TxCf) error {
		datumTxCf := txCfs[0]
		indexTxCfs := txCfs[1:]
		lock, err := raw.TakeExclusiveLock(ctx, datumTxCf)
		if err != nil {
			return err
		}
		defer lock.Release()
		return idx.Rebuild(ctx, raw, indexTxCfs, datumTxCf, datum.FromSlice)
	})
}
