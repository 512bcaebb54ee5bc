// Package memkv is a pure in-memory backend.Backend, with no
// dependency beyond the standard library. It exists purely as a fast
// test fixture for exercising sakuhiki's core dispatch and invariants
// without paying an embedded LSM engine's per-test startup cost; for a
// real on-disk/embedded engine see backend/badgerkv.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

type cfData struct {
	name string
	rows map[string][]byte
}

func (c *cfData) Name() string { return c.name }

// Backend holds every declared CF as a plain Go map, all guarded by
// one database-wide lock: ReadOnly transactions take a read lock
// (allowing concurrent readers), ReadWrite and IndexRebuilding take
// the write lock. This is stronger than the snapshot isolation the
// core requires — it's full serializability — but it is the simplest
// correct choice for a backend whose only job is to start and tear
// down in microseconds between unit tests.
type Backend struct {
	mu  sync.RWMutex
	cfs map[string]*cfData
}

func newBackend(names []string) *Backend {
	b := &Backend{cfs: make(map[string]*cfData, len(names))}
	for _, n := range names {
		b.cfs[n] = &cfData{name: n, rows: make(map[string][]byte)}
	}
	return b
}

func (b *Backend) CfHandle(ctx context.Context, name string) (backend.Cf, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cf, ok := b.cfs[name]
	if !ok {
		return nil, &backend.NoSuchCfError{Name: name}
	}
	return cf, nil
}

// Transaction holds the database-wide lock for mode's duration and
// rolls back every mutation (via an undo log) if body returns an
// error, so an aborted transaction leaves every CF byte-identical to
// its pre-transaction state (P5).
func (b *Backend) Transaction(ctx context.Context, mode backend.Mode, cfs []backend.Cf, body backend.TxBody) error {
	if mode == backend.ReadOnly {
		b.mu.RLock()
		defer b.mu.RUnlock()
	} else {
		b.mu.Lock()
		defer b.mu.Unlock()
	}
	txCfs := make([]backend.TxCf, len(cfs))
	for i, cf := range cfs {
		txCfs[i] = cf.(*cfData)
	}
	tx := &transaction{mode: mode}
	if err := body(ctx, tx, txCfs); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (b *Backend) Close() error { return nil }

type transaction struct {
	mode backend.Mode
	undo []func()
}

func (t *transaction) CurrentMode() backend.Mode { return t.mode }

func (t *transaction) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *transaction) requireWrite() error {
	if t.mode == backend.ReadOnly {
		return &backend.InvalidTransactionModeError{Expected: backend.ReadWrite, Actual: t.mode}
	}
	return nil
}

// TakeExclusiveLock is a no-op: an IndexRebuilding transaction already
// holds the whole-backend write lock for its entire duration (see
// Backend.Transaction), so there is nothing further to exclude.
func (t *transaction) TakeExclusiveLock(ctx context.Context, cf backend.TxCf) (backend.ExclusiveLock, error) {
	if t.mode != backend.IndexRebuilding {
		return nil, &backend.InvalidTransactionModeError{Expected: backend.IndexRebuilding, Actual: t.mode}
	}
	return noopLock{}, nil
}

type noopLock struct{}

func (noopLock) Release() {}

func (t *transaction) Get(ctx context.Context, c backend.TxCf, key []byte) ([]byte, bool, error) {
	cf := c.(*cfData)
	v, ok := cf.rows[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (t *transaction) Scan(ctx context.Context, c backend.TxCf, keys backend.KeyRange) (backend.Cursor, error) {
	cf := c.(*cfData)
	sorted := make([]string, 0, len(cf.rows))
	for k := range cf.rows {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	entries := make([]backend.Entry, 0, len(sorted))
	for _, k := range sorted {
		kb := []byte(k)
		if !inRange(kb, keys) {
			continue
		}
		entries = append(entries, backend.Entry{Key: kb, Value: append([]byte(nil), cf.rows[k]...)})
	}
	return &sliceCursor{entries: entries, i: -1}, nil
}

func (t *transaction) ScanPrefix(ctx context.Context, c backend.TxCf, prefix []byte) (backend.Cursor, error) {
	return t.Scan(ctx, c, backend.PrefixRange(prefix))
}

func (t *transaction) Put(ctx context.Context, c backend.TxCf, key, value []byte) ([]byte, bool, error) {
	if err := t.requireWrite(); err != nil {
		return nil, false, err
	}
	cf := c.(*cfData)
	k := string(key)
	old, hadOld := cf.rows[k]
	cf.rows[k] = append([]byte(nil), value...)
	if hadOld {
		oldCopy := append([]byte(nil), old...)
		t.undo = append(t.undo, func() { cf.rows[k] = oldCopy })
		return old, true, nil
	}
	t.undo = append(t.undo, func() { delete(cf.rows, k) })
	return nil, false, nil
}

func (t *transaction) Delete(ctx context.Context, c backend.TxCf, key []byte) ([]byte, bool, error) {
	if err := t.requireWrite(); err != nil {
		return nil, false, err
	}
	cf := c.(*cfData)
	k := string(key)
	old, hadOld := cf.rows[k]
	if !hadOld {
		return nil, false, nil
	}
	delete(cf.rows, k)
	oldCopy := append([]byte(nil), old...)
	t.undo = append(t.undo, func() { cf.rows[k] = oldCopy })
	return old, true, nil
}

func (t *transaction) Clear(ctx context.Context, c backend.TxCf) error {
	if t.mode != backend.IndexRebuilding {
		return &backend.InvalidTransactionModeError{Expected: backend.IndexRebuilding, Actual: t.mode}
	}
	cf := c.(*cfData)
	old := cf.rows
	cf.rows = make(map[string][]byte)
	t.undo = append(t.undo, func() { cf.rows = old })
	return nil
}

func inRange(key []byte, r backend.KeyRange) bool {
	switch r.Start.Kind {
	case backend.Inclusive:
		if bytes.Compare(key, r.Start.Key) < 0 {
			return false
		}
	case backend.Exclusive:
		if bytes.Compare(key, r.Start.Key) <= 0 {
			return false
		}
	}
	switch r.End.Kind {
	case backend.Inclusive:
		if bytes.Compare(key, r.End.Key) > 0 {
			return false
		}
	case backend.Exclusive:
		if bytes.Compare(key, r.End.Key) >= 0 {
			return false
		}
	}
	return true
}

type sliceCursor struct {
	entries []backend.Entry
	i       int
	err     error
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	c.i++
	return c.i < len(c.entries)
}

func (c *sliceCursor) Entry() backend.Entry { return c.entries[c.i] }
func (c *sliceCursor) Err() error           { return c.err }
func (c *sliceCursor) Close() error         { return nil }
