// Package badgerkv implements backend.Backend on top of an embedded
// BadgerDB instance. Badger has no native notion of column families, so
// each CF is a distinct byte-prefixed keyspace within one badger.DB,
// generalized from "table+index name" to "CF name".
package badgerkv

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// cfPrefixSeparator ends every CF's key prefix. Neither Builder nor
// cfPrefix rejects a CF name containing a 0x00 byte; such a name can
// make one CF's keyspace overlap another's.
const cfPrefixSeparator = 0x00

func cfPrefix(name string) []byte {
	p := make([]byte, 0, len(name)+1)
	p = append(p, name...)
	p = append(p, cfPrefixSeparator)
	return p
}

// Options configures a badgerkv.Backend.
type Options struct {
	// Path is the on-disk directory. Empty means in-memory.
	Path string
	// InMemory forces in-memory mode even when Path is set.
	InMemory bool
	// Logger receives badger's internal log output. Nil disables it
	// (badger's own logging is noisy at Info level by default).
	Logger badger.Logger
}

func (o Options) badgerOptions() badger.Options {
	opts := badger.DefaultOptions(o.Path)
	if o.Path == "" || o.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(o.Logger)
	return opts
}

// cfHandle is the Cf/TxCf value badgerkv hands back: just the resolved
// name; it is plain-comparable (==) so repeated CfHandle calls for the
// same name yield interchangeable values, matching the original
// backend trait's "handle valid and comparable for the database's
// lifetime" contract.
type cfHandle struct {
	name string
}

func (h cfHandle) Name() string   { return h.name }
func (h cfHandle) prefix() []byte { return cfPrefix(h.name) }

// Backend is a badger-backed backend.Backend. One Backend wraps exactly
// one badger.DB; CFs are prefixes within it.
type Backend struct {
	db *badger.DB

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

func open(opts Options) (*Backend, error) {
	db, err := badger.Open(opts.badgerOptions())
	if err != nil {
		return nil, fmt.Errorf("badgerkv: open: %w", err)
	}
	return &Backend{db: db, locks: make(map[string]*sync.RWMutex)}, nil
}

func (b *Backend) lockFor(name string) *sync.RWMutex {
	b.locksMu.Lock()
	defer b.locksMu.Unlock()
	l, ok := b.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		b.locks[name] = l
	}
	return l
}

func (b *Backend) CfHandle(ctx context.Context, name string) (backend.Cf, error) {
	err := b.db.View(func(tx *badger.Txn) error {
		_, err := tx.Get(registryKey(name))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, &backend.NoSuchCfError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("badgerkv: cf handle %q: %w", name, err)
	}
	return cfHandle{name: name}, nil
}

func (b *Backend) Transaction(ctx context.Context, mode backend.Mode, cfs []backend.Cf, body backend.TxBody) error {
	txCfs := make([]backend.TxCf, len(cfs))
	for i, cf := range cfs {
		txCfs[i] = cf.(cfHandle)
	}

	var bodyErr error
	run := func(tx *badger.Txn) error {
		txn := &transaction{backend: b, tx: tx, mode: mode}
		bodyErr = body(ctx, txn, txCfs)
		txn.releaseLocks()
		return bodyErr
	}

	var err error
	if mode == backend.ReadOnly {
		err = b.db.View(run)
	} else {
		err = b.db.Update(run)
	}
	if bodyErr != nil {
		return bodyErr
	}
	if err != nil {
		return fmt.Errorf("badgerkv: transaction: %w", err)
	}
	return nil
}

func (b *Backend) Close() error { return b.db.Close() }

// transaction adapts one badger.Txn to backend.Transaction. Exclusive
// locks taken through it are released when the transaction's body
// returns, whether it committed or not — badger's own MVCC gives
// snapshot isolation for everything else, so the only extra
// synchronization sakuhiki needs is the rebuild-time exclusive lock.
type transaction struct {
	backend *Backend
	tx      *badger.Txn
	mode    backend.Mode
	held    []*sync.RWMutex
}

func (t *transaction) CurrentMode() backend.Mode { return t.mode }

func (t *transaction) releaseLocks() {
	for _, l := range t.held {
		l.Unlock()
	}
	t.held = nil
}

type badgerLock struct{ release func() }

func (l badgerLock) Release() { l.release() }

// TakeExclusiveLock takes the cf's in-process mutex. It excludes only
// other TakeExclusiveLock callers on the same Backend: Put and Delete
// in other transactions do not take the mutex and do not wait for it.
func (t *transaction) TakeExclusiveLock(ctx context.Context, cf backend.TxCf) (backend.ExclusiveLock, error) {
	if t.mode != backend.IndexRebuilding {
		return nil, &backend.InvalidTransactionModeError{Expected: backend.IndexRebuilding, Actual: t.mode}
	}
	h := cf.(cfHandle)
	l := t.backend.lockFor(h.name)
	l.Lock()
	released := false
	t.held = append(t.held, l)
	return badgerLock{release: func() {
		if released {
			return
		}
		released = true
		l.Unlock()
		for i, held := range t.held {
			if held == l {
				t.held = append(t.held[:i], t.held[i+1:]...)
				break
			}
		}
	}}, nil
}

func (t *transaction) fullKey(cf backend.TxCf, key []byte) []byte {
	h := cf.(cfHandle)
	full := make([]byte, 0, len(h.prefix())+len(key))
	full = append(full, h.prefix()...)
	full = append(full, key...)
	return full
}

func (t *transaction) Get(ctx context.Context, cf backend.TxCf, key []byte) ([]byte, bool, error) {
	item, err := t.tx.Get(t.fullKey(cf, key))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, backend.WrapCf(cf.Name(), err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, backend.WrapCf(cf.Name(), err)
	}
	return val, true, nil
}

func (t *transaction) Scan(ctx context.Context, cf backend.TxCf, keys backend.KeyRange) (backend.Cursor, error) {
	h := cf.(cfHandle)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = h.prefix()
	it := t.tx.NewIterator(opts)

	start := append(append([]byte{}, h.prefix()...), boundStartKey(keys.Start)...)
	it.Seek(start)
	if keys.Start.Kind == backend.Exclusive {
		for it.Valid() && bytes.Equal(it.Item().Key(), start) {
			it.Next()
		}
	}
	return &cursor{it: it, prefix: h.prefix(), end: keys.End}, nil
}

func (t *transaction) ScanPrefix(ctx context.Context, cf backend.TxCf, prefix []byte) (backend.Cursor, error) {
	return t.Scan(ctx, cf, backend.PrefixRange(prefix))
}

func (t *transaction) Put(ctx context.Context, cf backend.TxCf, key, value []byte) ([]byte, bool, error) {
	if t.mode == backend.ReadOnly {
		return nil, false, &backend.InvalidTransactionModeError{Expected: backend.ReadWrite, Actual: t.mode}
	}
	prev, hadPrev, err := t.Get(ctx, cf, key)
	if err != nil {
		return nil, false, err
	}
	if err := t.tx.Set(t.fullKey(cf, key), value); err != nil {
		return nil, false, backend.WrapCf(cf.Name(), err)
	}
	return prev, hadPrev, nil
}

func (t *transaction) Delete(ctx context.Context, cf backend.TxCf, key []byte) ([]byte, bool, error) {
	if t.mode == backend.ReadOnly {
		return nil, false, &backend.InvalidTransactionModeError{Expected: backend.ReadWrite, Actual: t.mode}
	}
	prev, hadPrev, err := t.Get(ctx, cf, key)
	if err != nil {
		return nil, false, err
	}
	if !hadPrev {
		return nil, false, nil
	}
	if err := t.tx.Delete(t.fullKey(cf, key)); err != nil {
		return nil, false, backend.WrapCf(cf.Name(), err)
	}
	return prev, true, nil
}

func (t *transaction) Clear(ctx context.Context, cf backend.TxCf) error {
	if t.mode != backend.IndexRebuilding {
		return &backend.InvalidTransactionModeError{Expected: backend.IndexRebuilding, Actual: t.mode}
	}
	h := cf.(cfHandle)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = h.prefix()
	opts.PrefetchValues = false
	it := t.tx.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(h.prefix()); it.ValidForPrefix(h.prefix()); it.Next() {
		keys = append(keys, append([]byte{}, it.Item().Key()...))
	}
	for _, k := range keys {
		if err := t.tx.Delete(k); err != nil {
			return backend.WrapCf(cf.Name(), err)
		}
	}
	return nil
}

func boundStartKey(b backend.Bound) []byte {
	if b.Kind == backend.Unbounded {
		return nil
	}
	return b.Key
}
