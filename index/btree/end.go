package btree

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki"
	"github.com/sakuhiki-go/sakuhiki/backend"
)

// End is the terminal link of a composite chain: it contributes no key
// bytes of its own, storing whatever prefix the outer extractors have
// accumulated, with the object key appended and an empty value. A
// chain ending in End answers "does any row match this full key path",
// not a further sub-query — it has no Query method.
type End[T any] struct {
	cf string
}

// NewEnd declares a terminal index storing into cf.
func NewEnd[T any](cf string) *End[T] { return &End[T]{cf: cf} }

func (e *End[T]) Cfs() []string { return []string{e.cf} }

func (e *End[T]) Index(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf) error {
	return e.IndexPrefixed(ctx, objectKey, datum, txn, cfs, nil)
}

func (e *End[T]) Unindex(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf) error {
	return e.UnindexPrefixed(ctx, objectKey, datum, txn, cfs, nil)
}

func (e *End[T]) IndexPrefixed(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf, prefix []byte) error {
	key := make([]byte, 0, len(prefix)+len(objectKey))
	key = append(key, prefix...)
	key = append(key, objectKey...)
	_, _, err := txn.Put(ctx, cfs[0], key, []byte{})
	return backend.WrapCf(cfs[0].Name(), err)
}

func (e *End[T]) UnindexPrefixed(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf, prefix []byte) error {
	key := make([]byte, 0, len(prefix)+len(objectKey))
	key = append(key, prefix...)
	key = append(key, objectKey...)
	_, _, err := txn.Delete(ctx, cfs[0], key)
	return backend.WrapCf(cfs[0].Name(), err)
}

// KeyLen is always 0: End contributes no bytes, so the whole of
// whatever remains after the outer extractors is the object key.
func (e *End[T]) KeyLen(storedKey []byte) int { return 0 }

func (e *End[T]) Rebuild(ctx context.Context, txn backend.Transaction, indexCfs []backend.TxCf, datumCf backend.TxCf, parse func([]byte) (T, error)) error {
	return sakuhiki.DefaultRebuild[T](ctx, e, txn, indexCfs, datumCf, parse)
}
