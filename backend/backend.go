package backend

import "context"

// Cf is an opaque, long-lived handle to a column family, resolved once
// by Backend.CfHandle and valid for as long as the database stays open.
type Cf interface {
	// Name returns the static CF name this handle was resolved from.
	Name() string
}

// TxCf is the transaction-scoped counterpart of Cf, handed to a
// transaction body by Backend.Transaction in the same order the
// corresponding Cf values were passed in.
type TxCf interface {
	Name() string
}

// BoundKind says whether one endpoint of a scan range is unbounded,
// inclusive or exclusive.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Inclusive
	Exclusive
)

// Bound pairs a BoundKind with the key bytes it applies to (ignored for
// Unbounded).
type Bound struct {
	Kind BoundKind
	Key  []byte
}

// KeyRange is a scan range over a CF's keyspace. Either end may be
// unbounded, inclusive, or exclusive, independently.
type KeyRange struct {
	Start Bound
	End   Bound
}

// Range builds an inclusive-start, exclusive-end range, the shape most
// scans use.
func Range(start, end []byte) KeyRange {
	r := KeyRange{}
	if start != nil {
		r.Start = Bound{Kind: Inclusive, Key: start}
	}
	if end != nil {
		r.End = Bound{Kind: Exclusive, Key: end}
	}
	return r
}

// Entry is one (key, value) pair produced by a scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Cursor is a lazy, cancelable sequence of Entry values in ascending key
// order. Callers must Close it, whether or not iteration ran to
// completion; an abandoned Cursor must not leak backend resources nor
// leave the owning transaction's other operations unusable.
type Cursor interface {
	// Next advances the cursor and reports whether an entry was
	// produced. Once it returns false, Err reports why iteration
	// stopped (nil at natural end of range).
	Next(ctx context.Context) bool
	Entry() Entry
	Err() error
	Close() error
}

// ExclusiveLock is held for the remaining lifetime of the transaction
// that acquired it via Transaction.TakeExclusiveLock.
type ExclusiveLock interface {
	// Release is idempotent; ending the transaction releases any locks
	// still held regardless of whether Release was called explicitly.
	Release()
}

// Transaction is the set of primitive operations available inside a
// backend.Backend transaction body, scoped to the TxCf values the
// transaction was opened with.
type Transaction interface {
	// CurrentMode reports the mode this transaction was opened with.
	CurrentMode() Mode

	// TakeExclusiveLock blocks other writers on cf (including from
	// other transactions) until this transaction ends. Only valid in
	// IndexRebuilding mode.
	TakeExclusiveLock(ctx context.Context, cf TxCf) (ExclusiveLock, error)

	// Get returns the value at key as of this transaction's view,
	// including the transaction's own prior writes. ok is false if key
	// is absent.
	Get(ctx context.Context, cf TxCf, key []byte) (value []byte, ok bool, err error)

	// Scan returns entries in keys in strictly ascending key order.
	Scan(ctx context.Context, cf TxCf, keys KeyRange) (Cursor, error)

	// ScanPrefix scans every key having prefix as a byte prefix. The
	// default algorithm (see NextPrefix) computes the exclusive upper
	// bound by incrementing the right-most byte below 0xFF and carrying
	// trailing 0xFF bytes; if no such bound exists (prefix is all
	// 0xFF, including empty), the scan is unbounded above.
	ScanPrefix(ctx context.Context, cf TxCf, prefix []byte) (Cursor, error)

	// Put writes value at key, returning the previous value if any,
	// atomically with the write. Valid in ReadWrite and IndexRebuilding
	// modes.
	Put(ctx context.Context, cf TxCf, key, value []byte) (previous []byte, hadPrevious bool, err error)

	// Delete removes key, returning the previous value if any. Valid in
	// ReadWrite and IndexRebuilding modes.
	Delete(ctx context.Context, cf TxCf, key []byte) (previous []byte, hadPrevious bool, err error)

	// Clear empties cf entirely. Valid only in IndexRebuilding mode.
	Clear(ctx context.Context, cf TxCf) error
}

// TxBody is the callback invoked once per Backend.Transaction call. Its
// txCfs slice mirrors cfs positionally. Returning a non-nil error aborts
// the transaction; returning nil commits it.
type TxBody func(ctx context.Context, txn Transaction, txCfs []TxCf) error

// Backend is the only place primitive KV operations exist. A concrete
// backend (embedded B-tree, LSM engine, cloud KV service) implements
// this directly; sakuhiki's core never talks to a storage engine except
// through this interface.
type Backend interface {
	// CfHandle resolves name to a long-lived handle. Fails with
	// *NoSuchCfError if the backend was not opened with that CF.
	CfHandle(ctx context.Context, name string) (Cf, error)

	// Transaction opens a transaction scoped to cfs (in the given
	// order) and mode, and invokes body exactly once. The transaction
	// commits iff body returns nil; any non-nil error aborts it and is
	// returned to the caller unchanged.
	Transaction(ctx context.Context, mode Mode, cfs []Cf, body TxBody) error

	// Close releases backend resources. Safe to call once after all
	// transactions have completed.
	Close() error
}
