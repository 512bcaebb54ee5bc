package btree

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki"
	"github.com/sakuhiki-go/sakuhiki/backend"
)

// PrefixedIndexer is implemented by every bundled index kind that can
// be composed under a Composite: besides the ordinary sakuhiki.Indexer
// contract, it accepts a key prefix an outer Composite has already
// accumulated, growing one key buffer down the chain instead of each
// level allocating its own.
type PrefixedIndexer[T any] interface {
	Cfs() []string
	IndexPrefixed(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf, prefix []byte) error
	UnindexPrefixed(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf, prefix []byte) error
	KeyLen(storedKey []byte) int
}

// Index is a single-column B-tree index: the stored key is
// extractor(datum) ‖ objectKey, with an empty value. It implements
// both sakuhiki.Index[T, Query] directly and PrefixedIndexer[T], so it
// can be used standalone or as the innermost link of a Composite chain
// (composed under another KeyExtractor) by calling IndexPrefixed
// itself down another level.
type Index[T any] struct {
	cf  string
	key KeyExtractor[T]
}

// NewIndex declares a single-column B-tree index storing into cf,
// keyed by key.
func NewIndex[T any](cf string, key KeyExtractor[T]) *Index[T] {
	return &Index[T]{cf: cf, key: key}
}

func (b *Index[T]) Cfs() []string { return []string{b.cf} }

func (b *Index[T]) Index(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf) error {
	return b.IndexPrefixed(ctx, objectKey, datum, txn, cfs, nil)
}

func (b *Index[T]) Unindex(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf) error {
	return b.UnindexPrefixed(ctx, objectKey, datum, txn, cfs, nil)
}

func (b *Index[T]) IndexPrefixed(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf, prefix []byte) error {
	key := make([]byte, len(prefix), len(prefix)+b.key.LenHint(datum)+len(objectKey))
	copy(key, prefix)
	key, include := b.key.ExtractKey(datum, key)
	if !include {
		return nil
	}
	key = append(key, objectKey...)
	_, _, err := txn.Put(ctx, cfs[0], key, []byte{})
	return backend.WrapCf(cfs[0].Name(), err)
}

func (b *Index[T]) UnindexPrefixed(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf, prefix []byte) error {
	key := make([]byte, len(prefix), len(prefix)+b.key.LenHint(datum)+len(objectKey))
	copy(key, prefix)
	key, include := b.key.ExtractKey(datum, key)
	if !include {
		return nil
	}
	key = append(key, objectKey...)
	_, _, err := txn.Delete(ctx, cfs[0], key)
	return backend.WrapCf(cfs[0].Name(), err)
}

// KeyLen delegates to the underlying KeyExtractor.
func (b *Index[T]) KeyLen(storedKey []byte) int { return b.key.KeyLen(storedKey) }

func (b *Index[T]) Rebuild(ctx context.Context, txn backend.Transaction, indexCfs []backend.TxCf, datumCf backend.TxCf, parse func([]byte) (T, error)) error {
	return sakuhiki.DefaultRebuild[T](ctx, b, txn, indexCfs, datumCf, parse)
}

// Query executes q against this index's CF and dereferences each
// matching row back into objectCf.
func (b *Index[T]) Query(ctx context.Context, q Query, txn backend.Transaction, objectCf backend.TxCf, indexCfs []backend.TxCf) (sakuhiki.QueryCursor, error) {
	return runQuery(ctx, q, txn, objectCf, indexCfs[0], b.key.KeyLen)
}
