// sakuhiki-inspect is a small, read-only debugging CLI for a
// badgerkv-backed sakuhiki database: it dumps every CF's contents
// without requiring the caller to link against the Go types a Datum
// was declared with. Tooling around the library, not part of its
// public contract.
//
// Usage:
//
//	sakuhiki-inspect --db ./data
//	sakuhiki-inspect --db ./data --cf d-foo
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sakuhiki-go/sakuhiki/backend"
	"github.com/sakuhiki-go/sakuhiki/backend/badgerkv"
)

func main() {
	cfg := LoadConfig()

	dbPath := flag.String("db", cfg.DataDir, "badgerkv data directory to inspect")
	cfFilter := flag.String("cf", "", "only dump this column family (default: all)")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "sakuhiki-inspect: --db is required (or set dataDir in sakuhiki-inspect.yaml)")
		os.Exit(1)
	}

	if err := run(*dbPath, *cfFilter); err != nil {
		log.Fatalf("sakuhiki-inspect: %v", err)
	}
}

func run(dbPath, cfFilter string) error {
	ctx := context.Background()
	factory := badgerkv.NewFactory(badgerkv.Options{Path: dbPath})

	names, err := factory.ExistingCfs(ctx)
	if err != nil {
		return fmt.Errorf("list cfs: %w", err)
	}
	if cfFilter != "" {
		names = filterCf(names, cfFilter)
	}

	cfConfigs := make([]backend.CfConfig, len(names))
	for i, name := range names {
		cfConfigs[i] = backend.CfConfig{Name: name, Kind: backend.NotConfigured}
	}

	rawBackend, _, err := factory.Open(ctx, cfConfigs, false)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer rawBackend.Close()

	cfs := make([]backend.Cf, len(names))
	for i, name := range names {
		cf, err := rawBackend.CfHandle(ctx, name)
		if err != nil {
			return fmt.Errorf("cf handle %q: %w", name, err)
		}
		cfs[i] = cf
	}

	return rawBackend.Transaction(ctx, backend.ReadOnly, cfs, func(ctx context.Context, txn backend.Transaction, txCfs []backend.TxCf) error {
		for _, cf := range txCfs {
			if err := dumpCf(ctx, txn, cf); err != nil {
				return err
			}
		}
		return nil
	})
}

func filterCf(names []string, want string) []string {
	for _, n := range names {
		if n == want {
			return []string{n}
		}
	}
	return nil
}

func dumpCf(ctx context.Context, txn backend.Transaction, cf backend.TxCf) error {
	fmt.Printf("== %s ==\n", cf.Name())
	cur, err := txn.Scan(ctx, cf, backend.KeyRange{})
	if err != nil {
		return fmt.Errorf("scan %q: %w", cf.Name(), err)
	}
	defer cur.Close()

	count := 0
	for cur.Next(ctx) {
		e := cur.Entry()
		fmt.Printf("  %s = %s\n", hex.EncodeToString(e.Key), hex.EncodeToString(e.Value))
		count++
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("scan %q: %w", cf.Name(), err)
	}
	fmt.Printf("  (%d entries)\n", count)
	return nil
}
