package sakuhiki

import "github.com/sakuhiki-go/sakuhiki/backend"

// Cf is the database-scoped handle bundle CfHandle resolves for a
// Datum[T]: the primary CF handle, plus, in Datum.Indexes order, the
// handle list each index's Cfs() resolved to.
type Cf[T any] struct {
	datumCf  backend.Cf
	indexCfs [][]backend.Cf
}

// TxCf is the transaction-scoped counterpart of Cf, handed to a Txn[T]
// for the lifetime of one transaction. Its shape mirrors Cf
// positionally.
type TxCf[T any] struct {
	datumCf  backend.TxCf
	indexCfs [][]backend.TxCf
}

func flattenCf[T any](cf Cf[T]) []backend.Cf {
	n := 1
	for _, group := range cf.indexCfs {
		n += len(group)
	}
	flat := make([]backend.Cf, 0, n)
	flat = append(flat, cf.datumCf)
	for _, group := range cf.indexCfs {
		flat = append(flat, group...)
	}
	return flat
}

func unflattenTxCf[T any](cf Cf[T], flat []backend.TxCf) TxCf[T] {
	datumCf := flat[0]
	rest := flat[1:]
	groups := make([][]backend.TxCf, len(cf.indexCfs))
	for i, group := range cf.indexCfs {
		groups[i] = rest[:len(group)]
		rest = rest[len(group):]
	}
	return TxCf[T]{datumCf: datumCf, indexCfs: groups}
}
