package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

func open(t *testing.T, names ...string) (backend.Backend, []backend.Cf) {
	t.Helper()
	f := NewFactory()
	cfgs := make([]backend.CfConfig, len(names))
	for i, n := range names {
		cfgs[i] = backend.CfConfig{Name: n, Kind: backend.NotConfigured}
	}
	b, created, err := f.Open(context.Background(), cfgs, false)
	require.NoError(t, err)
	for _, n := range names {
		require.True(t, created[n])
	}
	t.Cleanup(func() { _ = b.Close() })

	cfs := make([]backend.Cf, len(names))
	for i, n := range names {
		cf, err := b.CfHandle(context.Background(), n)
		require.NoError(t, err)
		cfs[i] = cf
	}
	return b, cfs
}

func TestCfHandleUnknownName(t *testing.T) {
	b, _ := open(t, "a")
	_, err := b.CfHandle(context.Background(), "missing")
	require.Error(t, err)
	var notFound *backend.NoSuchCfError
	require.ErrorAs(t, err, &notFound)
}

func TestPutGetDelete(t *testing.T) {
	b, cfs := open(t, "a")
	ctx := context.Background()

	err := b.Transaction(ctx, backend.ReadWrite, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		_, hadOld, err := txn.Put(ctx, txCfs[0], []byte("k"), []byte("v1"))
		require.NoError(t, err)
		require.False(t, hadOld)

		old, hadOld, err := txn.Put(ctx, txCfs[0], []byte("k"), []byte("v2"))
		require.NoError(t, err)
		require.True(t, hadOld)
		assert.Equal(t, "v1", string(old))

		v, ok, err := txn.Get(ctx, txCfs[0], []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v2", string(v))

		old, hadOld, err = txn.Delete(ctx, txCfs[0], []byte("k"))
		require.NoError(t, err)
		require.True(t, hadOld)
		assert.Equal(t, "v2", string(old))

		_, ok, err = txn.Get(ctx, txCfs[0], []byte("k"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

// TestRollbackOnError verifies P5: an error from the transaction body
// leaves every CF exactly as it was before the transaction began.
func TestRollbackOnError(t *testing.T) {
	b, cfs := open(t, "a")
	ctx := context.Background()

	require.NoError(t, b.Transaction(ctx, backend.ReadWrite, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		_, _, err := txn.Put(ctx, txCfs[0], []byte("seed"), []byte("1"))
		return err
	}))

	sentinel := assert.AnError
	err := b.Transaction(ctx, backend.ReadWrite, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		if _, _, err := txn.Put(ctx, txCfs[0], []byte("seed"), []byte("2")); err != nil {
			return err
		}
		if _, _, err := txn.Put(ctx, txCfs[0], []byte("new"), []byte("3")); err != nil {
			return err
		}
		if _, _, err := txn.Delete(ctx, txCfs[0], []byte("seed")); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	err = b.Transaction(ctx, backend.ReadOnly, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		v, ok, err := txn.Get(ctx, txCfs[0], []byte("seed"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "1", string(v))

		_, ok, err = txn.Get(ctx, txCfs[0], []byte("new"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestScanRespectsKeyRangeBounds(t *testing.T) {
	b, cfs := open(t, "a")
	ctx := context.Background()

	require.NoError(t, b.Transaction(ctx, backend.ReadWrite, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		for _, k := range []string{"a", "b", "c", "d"} {
			if _, _, err := txn.Put(ctx, txCfs[0], []byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}))

	err := b.Transaction(ctx, backend.ReadOnly, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		cur, err := txn.Scan(ctx, txCfs[0], backend.Range([]byte("b"), []byte("d")))
		require.NoError(t, err)
		defer cur.Close()
		var got []string
		for cur.Next(ctx) {
			got = append(got, string(cur.Entry().Key))
		}
		require.NoError(t, cur.Err())
		assert.Equal(t, []string{"b", "c"}, got)
		return nil
	})
	require.NoError(t, err)
}

func TestScanPrefix(t *testing.T) {
	b, cfs := open(t, "a")
	ctx := context.Background()

	require.NoError(t, b.Transaction(ctx, backend.ReadWrite, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		for _, k := range []string{"ax", "ay", "b"} {
			if _, _, err := txn.Put(ctx, txCfs[0], []byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}))

	err := b.Transaction(ctx, backend.ReadOnly, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		cur, err := txn.ScanPrefix(ctx, txCfs[0], []byte("a"))
		require.NoError(t, err)
		defer cur.Close()
		var got []string
		for cur.Next(ctx) {
			got = append(got, string(cur.Entry().Key))
		}
		require.NoError(t, cur.Err())
		assert.Equal(t, []string{"ax", "ay"}, got)
		return nil
	})
	require.NoError(t, err)
}

func TestWriteRejectedOnReadOnlyTransaction(t *testing.T) {
	b, cfs := open(t, "a")
	ctx := context.Background()

	err := b.Transaction(ctx, backend.ReadOnly, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		_, _, err := txn.Put(ctx, txCfs[0], []byte("k"), []byte("v"))
		return err
	})
	require.Error(t, err)
	var modeErr *backend.InvalidTransactionModeError
	require.ErrorAs(t, err, &modeErr)
}

func TestClearRequiresIndexRebuildingMode(t *testing.T) {
	b, cfs := open(t, "a")
	ctx := context.Background()

	err := b.Transaction(ctx, backend.ReadWrite, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		return txn.Clear(ctx, txCfs[0])
	})
	require.Error(t, err)

	require.NoError(t, b.Transaction(ctx, backend.ReadWrite, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		_, _, err := txn.Put(ctx, txCfs[0], []byte("k"), []byte("v"))
		return err
	}))

	require.NoError(t, b.Transaction(ctx, backend.IndexRebuilding, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		return txn.Clear(ctx, txCfs[0])
	}))

	err = b.Transaction(ctx, backend.ReadOnly, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		_, ok, err := txn.Get(ctx, txCfs[0], []byte("k"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestTakeExclusiveLockRequiresIndexRebuildingMode(t *testing.T) {
	b, cfs := open(t, "a")
	ctx := context.Background()

	err := b.Transaction(ctx, backend.ReadWrite, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		_, err := txn.TakeExclusiveLock(ctx, txCfs[0])
		return err
	})
	require.Error(t, err)

	err = b.Transaction(ctx, backend.IndexRebuilding, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		lock, err := txn.TakeExclusiveLock(ctx, txCfs[0])
		require.NoError(t, err)
		lock.Release()
		return nil
	})
	require.NoError(t, err)
}

func TestExistingCfsAlwaysEmpty(t *testing.T) {
	f := NewFactory()
	names, err := f.ExistingCfs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}
