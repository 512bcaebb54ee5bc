// Package example wires up a small, complete sakuhiki database: a
// Record datum with two fixed-length numeric indexes, demonstrating
// Builder/DB/Txn end to end the way the core's own test scenarios do.
package example

import (
	"encoding/binary"
	"fmt"

	"github.com/sakuhiki-go/sakuhiki"
	"github.com/sakuhiki-go/sakuhiki/index/btree"
)

// Record is a fixed 8-byte datum: two big-endian uint32 fields, Foo and
// Bar.
type Record struct {
	Foo uint32
	Bar uint32
}

func (r Record) marshal() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], r.Foo)
	binary.BigEndian.PutUint32(buf[4:8], r.Bar)
	return buf
}

func recordFromSlice(b []byte) (Record, error) {
	if len(b) != 8 {
		return Record{}, fmt.Errorf("record: expected 8 bytes, got %d", len(b))
	}
	return Record{
		Foo: binary.BigEndian.Uint32(b[0:4]),
		Bar: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// FooIndex and BarIndex are fixed-length indexes over Record's two
// fields, stored in their own CFs.
var (
	FooIndex = btree.NewIndex[Record]("d-foo", btree.FixedLenUint[Record, uint32](4, func(r Record) (uint32, bool) {
		return r.Foo, true
	}))
	BarIndex = btree.NewIndex[Record]("d-bar", btree.FixedLenUint[Record, uint32](4, func(r Record) (uint32, bool) {
		return r.Bar, true
	}))
)

// Datum is the full descriptor: CF "d", indexed by FooIndex and
// BarIndex.
var Datum = &sakuhiki.Datum[Record]{
	CF:        "d",
	Indexes:   []sakuhiki.Indexer[Record]{FooIndex, BarIndex},
	FromSlice: recordFromSlice,
}

// Put serializes r for storage as the datum CF's raw bytes.
func Put(r Record) []byte { return r.marshal() }
