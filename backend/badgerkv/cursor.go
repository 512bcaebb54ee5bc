package badgerkv

import (
	"bytes"
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// cursor adapts a badger.Iterator (already Seek'd to its start key) to
// backend.Cursor, stopping at the CF's prefix boundary and at keys.End.
type cursor struct {
	it     *badger.Iterator
	prefix []byte
	end    backend.Bound

	started bool
	entry   backend.Entry
	err     error
	done    bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.done || c.err != nil {
		return false
	}
	if ctx.Err() != nil {
		c.err = ctx.Err()
		return false
	}
	if c.started {
		c.it.Next()
	}
	c.started = true

	if !c.it.ValidForPrefix(c.prefix) {
		c.done = true
		return false
	}
	item := c.it.Item()
	full := item.KeyCopy(nil)
	key := full[len(c.prefix):]

	switch c.end.Kind {
	case backend.Inclusive:
		if bytes.Compare(key, c.end.Key) > 0 {
			c.done = true
			return false
		}
	case backend.Exclusive:
		if bytes.Compare(key, c.end.Key) >= 0 {
			c.done = true
			return false
		}
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		c.err = backend.WrapCf("", err)
		return false
	}
	c.entry = backend.Entry{Key: key, Value: val}
	return true
}

func (c *cursor) Entry() backend.Entry { return c.entry }
func (c *cursor) Err() error           { return c.err }
func (c *cursor) Close() error {
	c.it.Close()
	return nil
}
