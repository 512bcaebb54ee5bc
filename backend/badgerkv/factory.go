package badgerkv

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// registryPrefix holds the set of CF names this backend has ever been
// opened with, so a later Open (against the same Path) can report which
// of the Builder's declared CFs already existed. Badger has no CF
// metadata of its own — multiplexing one keyspace into many CFs is
// this package's own scheme, so the registry has to be maintained
// alongside it. The leading NUL keeps it out of the byte-prefix range
// of every CF whose name does not start with NUL. Builder does not
// reject an empty CF name or one starting with NUL; the prefix of such
// a CF can cover the registry keys.
var registryPrefix = []byte{0x00, '_', '_', 's', 'a', 'k', 'u', 'h', 'i', 'k', 'i', '_', 'r', 'e', 'g', 0x00}

func registryKey(name string) []byte {
	return append(append([]byte{}, registryPrefix...), name...)
}

// Factory opens a Backend from Options, reconciling the Builder's
// declared CFs against whatever a prior Open already persisted.
type Factory struct {
	Options Options
}

// NewFactory builds a Factory over opts.
func NewFactory(opts Options) *Factory { return &Factory{Options: opts} }

func (f *Factory) ExistingCfs(ctx context.Context) ([]string, error) {
	b, err := open(f.Options)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	var names []string
	err = b.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = registryPrefix
		opts.PrefetchValues = false
		it := tx.NewIterator(opts)
		defer it.Close()
		for it.Seek(registryPrefix); it.ValidForPrefix(registryPrefix); it.Next() {
			names = append(names, string(bytes.TrimPrefix(it.Item().KeyCopy(nil), registryPrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerkv: list existing cfs: %w", err)
	}
	return names, nil
}

func (f *Factory) Open(ctx context.Context, cfs []backend.CfConfig, dropUnknownCfs bool) (backend.Backend, map[string]bool, error) {
	b, err := open(f.Options)
	if err != nil {
		return nil, nil, err
	}

	wanted := make(map[string]bool, len(cfs))
	for _, cfg := range cfs {
		wanted[cfg.Name] = true
	}

	created := make(map[string]bool, len(cfs))
	err = b.db.Update(func(tx *badger.Txn) error {
		existing := make(map[string]bool)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = registryPrefix
		opts.PrefetchValues = false
		it := tx.NewIterator(opts)
		for it.Seek(registryPrefix); it.ValidForPrefix(registryPrefix); it.Next() {
			existing[string(bytes.TrimPrefix(it.Item().KeyCopy(nil), registryPrefix))] = true
		}
		it.Close()

		for _, cfg := range cfs {
			if existing[cfg.Name] {
				continue
			}
			created[cfg.Name] = true
			if err := tx.Set(registryKey(cfg.Name), []byte{}); err != nil {
				return fmt.Errorf("register cf %q: %w", cfg.Name, err)
			}
		}

		if !dropUnknownCfs {
			return nil
		}
		for name := range existing {
			if wanted[name] {
				continue
			}
			if err := dropCfData(tx, name); err != nil {
				return fmt.Errorf("drop unknown cf %q: %w", name, err)
			}
			if err := tx.Delete(registryKey(name)); err != nil {
				return fmt.Errorf("deregister cf %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("badgerkv: open: %w", err)
	}
	return b, created, nil
}

func dropCfData(tx *badger.Txn, name string) error {
	prefix := cfPrefix(name)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := tx.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
