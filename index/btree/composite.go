package btree

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki"
	"github.com/sakuhiki-go/sakuhiki/backend"
)

// Composite chains an outer KeyExtractor in front of an inner
// PrefixedIndexer: Cfs is the inner's alone (the outer contributes only
// a key prefix, never a CF of its own), and a write recurses into the
// inner after prepending the outer's extracted bytes. If the outer
// extractor declines to index a given datum, the composite does not
// recurse and nothing is written, symmetrically for Unindex. Chains
// nest to arbitrary depth: a Composite is itself a PrefixedIndexer, so
// it can serve as another Composite's inner link.
type Composite[T any] struct {
	outer KeyExtractor[T]
	inner PrefixedIndexer[T]
}

// NewComposite chains outer in front of inner.
func NewComposite[T any](outer KeyExtractor[T], inner PrefixedIndexer[T]) *Composite[T] {
	return &Composite[T]{outer: outer, inner: inner}
}

func (c *Composite[T]) Cfs() []string { return c.inner.Cfs() }

func (c *Composite[T]) Index(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf) error {
	return c.IndexPrefixed(ctx, objectKey, datum, txn, cfs, nil)
}

func (c *Composite[T]) Unindex(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf) error {
	return c.UnindexPrefixed(ctx, objectKey, datum, txn, cfs, nil)
}

func (c *Composite[T]) IndexPrefixed(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf, prefix []byte) error {
	key := make([]byte, len(prefix), len(prefix)+c.outer.LenHint(datum))
	copy(key, prefix)
	key, include := c.outer.ExtractKey(datum, key)
	if !include {
		return nil
	}
	return c.inner.IndexPrefixed(ctx, objectKey, datum, txn, cfs, key)
}

func (c *Composite[T]) UnindexPrefixed(ctx context.Context, objectKey []byte, datum T, txn backend.Transaction, cfs []backend.TxCf, prefix []byte) error {
	key := make([]byte, len(prefix), len(prefix)+c.outer.LenHint(datum))
	copy(key, prefix)
	key, include := c.outer.ExtractKey(datum, key)
	if !include {
		return nil
	}
	return c.inner.UnindexPrefixed(ctx, objectKey, datum, txn, cfs, key)
}

// KeyLen composes the outer extractor's fixed contribution with
// whatever the inner link reports for the remainder.
func (c *Composite[T]) KeyLen(storedKey []byte) int {
	outerLen := c.outer.KeyLen(storedKey)
	return outerLen + c.inner.KeyLen(storedKey[outerLen:])
}

func (c *Composite[T]) Rebuild(ctx context.Context, txn backend.Transaction, indexCfs []backend.TxCf, datumCf backend.TxCf, parse func([]byte) (T, error)) error {
	return sakuhiki.DefaultRebuild[T](ctx, c, txn, indexCfs, datumCf, parse)
}

// Query executes q against the chain's sole CF, deferring key-length
// resolution to the full chain's composed KeyLen.
func (c *Composite[T]) Query(ctx context.Context, q Query, txn backend.Transaction, objectCf backend.TxCf, indexCfs []backend.TxCf) (sakuhiki.QueryCursor, error) {
	return runQuery(ctx, q, txn, objectCf, indexCfs[0], c.KeyLen)
}
