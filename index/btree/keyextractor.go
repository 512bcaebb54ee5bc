// Package btree bundles the bread-and-butter index kinds sakuhiki's
// core leaves out by design: a single-column B-tree index, a terminal
// index, and a composite chain of the two. None of this is part of
// the core contract (sakuhiki.Indexer / sakuhiki.Index) — it is one
// concrete, replaceable way of satisfying it.
package btree

// KeyExtractor derives an index key from a datum of type T. ExtractKey
// appends the extracted bytes to key and reports whether datum belongs
// in the index at all — an extractor may decline, in which case
// nothing is written for that datum. KeyLen tells a reader how many
// leading bytes of a stored index key this extractor produced; the
// remainder of the stored key is the object key.
type KeyExtractor[T any] interface {
	LenHint(datum T) int
	ExtractKey(datum T, key []byte) (out []byte, include bool)
	KeyLen(storedKey []byte) int
}
