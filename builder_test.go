package sakuhiki_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakuhiki-go/sakuhiki"
	"github.com/sakuhiki-go/sakuhiki/backend"
	"github.com/sakuhiki-go/sakuhiki/backend/memkv"
	"github.com/sakuhiki-go/sakuhiki/index/btree"
)

type widget struct {
	ID uint32
}

func widgetDatum(cf string, indexes ...sakuhiki.Indexer[widget]) *sakuhiki.Datum[widget] {
	return &sakuhiki.Datum[widget]{
		CF:      cf,
		Indexes: indexes,
		FromSlice: func(b []byte) (widget, error) {
			return widget{}, nil
		},
	}
}

func widgetIndex(cf string) *btree.Index[widget] {
	return btree.NewIndex[widget](cf, btree.FixedLenUint[widget, uint32](4, func(w widget) (uint32, bool) {
		return w.ID, true
	}))
}

// TestDuplicateCfPanics verifies two datums claiming the same CF name
// panic at RegisterDatum time (I3), before Build ever runs.
func TestDuplicateCfPanics(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory())
	sakuhiki.RegisterDatum(b, widgetDatum("d"))
	assert.PanicsWithValue(t, &sakuhiki.DuplicateCfError{Cf: "d"}, func() {
		sakuhiki.RegisterDatum(b, widgetDatum("d"))
	})
}

// TestDuplicateCfAcrossDatumAndIndexPanics verifies the uniqueness check
// covers an index's own CF too, not just a datum's primary CF.
func TestDuplicateCfAcrossDatumAndIndexPanics(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory())
	sakuhiki.RegisterDatum(b, widgetDatum("shared"))
	assert.PanicsWithValue(t, &sakuhiki.DuplicateCfError{Cf: "shared"}, func() {
		sakuhiki.RegisterDatum(b, widgetDatum("d2", widgetIndex("shared")))
	})
}

// TestRequireAllCfsConfiguredPanicsOnMissingOptions verifies Build
// panics for a declared CF with no CfOptions entry when
// RequireAllCfsConfigured is set.
func TestRequireAllCfsConfiguredPanicsOnMissingOptions(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory()).RequireAllCfsConfigured()
	sakuhiki.RegisterDatum(b, widgetDatum("d"))
	assert.Panics(t, func() {
		_, _ = b.Build(context.Background())
	})
}

// TestUnusedCfOptionsPanicsByDefault verifies CfOptions given for a CF
// nothing declared panics unless AllowExtraCfConfig is set.
func TestUnusedCfOptionsPanicsByDefault(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory())
	sakuhiki.RegisterDatum(b, widgetDatum("d"))
	b.CfOptions("stray", nil)
	assert.Panics(t, func() {
		_, _ = b.Build(context.Background())
	})
}

// TestAllowExtraCfConfigDropsUnusedOptions verifies AllowExtraCfConfig
// makes Build silently drop CfOptions entries for undeclared CFs
// instead of panicking.
func TestAllowExtraCfConfigDropsUnusedOptions(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory()).AllowExtraCfConfig()
	sakuhiki.RegisterDatum(b, widgetDatum("d"))
	b.CfOptions("stray", nil)
	db, err := b.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

// TestReuseLastPanicsWhenCfDoesNotExist verifies CfOptionsReuseLast on a
// freshly created CF panics, since there is nothing to reuse.
func TestReuseLastPanicsWhenCfDoesNotExist(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory())
	sakuhiki.RegisterDatum(b, widgetDatum("d"))
	b.CfOptionsReuseLast("d")
	assert.Panics(t, func() {
		_, _ = b.Build(context.Background())
	})
}

// TestReservedNamespaceRejectedByRegisterDatum verifies the reserved
// prefix check applies to RegisterDatum's CF declarations, not just
// CfOptions (I4).
func TestReservedNamespaceRejectedByRegisterDatum(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory())
	assert.PanicsWithValue(t, &sakuhiki.ReservedNamespaceError{Cf: "__sakuhiki_d"}, func() {
		sakuhiki.RegisterDatum(b, widgetDatum("__sakuhiki_d"))
	})
}

// TestBuildOpensWithoutAnyDatum verifies an empty Builder still opens a
// usable, empty DB.
func TestBuildOpensWithoutAnyDatum(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory())
	db, err := b.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

// TestCfHandleUnknownDatumCf verifies resolving a Cf[T] for a datum
// whose CF the backend's factory never saw surfaces a backend error
// rather than panicking, since it's a data problem, not a wiring bug.
func TestCfHandleUnknownDatumCf(t *testing.T) {
	b := sakuhiki.NewBuilder(memkv.NewFactory())
	db, err := b.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = sakuhiki.CfHandle(context.Background(), db, widgetDatum("never-registered"))
	require.Error(t, err)
	var noSuchCf *backend.NoSuchCfError
	require.ErrorAs(t, err, &noSuchCf)
}
