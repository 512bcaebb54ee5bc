// Package sakuhiki is a backend-agnostic, transactional key-value
// storage layer with secondary indexing and automatic index
// maintenance: every write to a Datum's primary column family fans out
// to every index declared for it, inside the same backend transaction.
package sakuhiki

// ReservedPrefix marks the CF namespace reserved for sakuhiki's own
// bookkeeping. Application code may not declare or configure a CF name
// starting with it (I4).
const ReservedPrefix = "__sakuhiki"

// Datum describes how values of type T are stored in a primary column
// family and projected into zero or more secondary indexes.
type Datum[T any] struct {
	// CF is the column family T's serialized form is stored in.
	CF string

	// Indexes lists, in maintenance order, every index T is projected
	// into. Put and Delete on a Txn[T] run these in this order, so an
	// index that depends on another's side effects must come after it.
	Indexes []Indexer[T]

	// FromSlice deserializes one stored value. It must be pure: it may
	// be invoked once per write (parse-once put/delete) and once per
	// row during a full rebuild scan, and must return the same value
	// either way.
	FromSlice func([]byte) (T, error)
}
