package sakuhiki

import (
	"context"
	"strings"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

type cfEntry struct {
	kind    backend.CfConfigKind
	options any
}

type indexRebuilder struct {
	datumCf  string
	indexCfs []string
	rebuild  func(ctx context.Context, db *DB) error
}

// Builder is the single entry point for opening a DB. It gathers CF
// declarations and their backend-specific options, enforces the
// reserved-namespace and CF-uniqueness invariants (I3, I4), opens the
// backend, and runs index rebuilds for every freshly created CF before
// handing the caller a DB to transact against. Builder misuse
// (duplicate CF, reserved namespace, dangling CF options) is a
// programmer error and panics immediately rather than surfacing as an
// error return, so these mistakes are caught at wiring time rather
// than buried behind a build() call the caller might not check.
type Builder struct {
	factory backend.Factory

	usedCfs map[string]bool
	cfOpts  map[string]cfEntry

	rebuilders []indexRebuilder

	requireAllCfsConfigured bool
	allowExtraCfConfig      bool
	dropUnknownCfs          bool
}

// NewBuilder starts a Builder that will open its backend via factory.
func NewBuilder(factory backend.Factory) *Builder {
	return &Builder{
		factory: factory,
		usedCfs: make(map[string]bool),
		cfOpts:  make(map[string]cfEntry),
	}
}

// RequireAllCfsConfigured makes Build panic if any declared CF has no
// CfOptions entry, instead of defaulting it to NotConfigured.
func (b *Builder) RequireAllCfsConfigured() *Builder {
	b.requireAllCfsConfigured = true
	return b
}

// AllowExtraCfConfig makes Build silently drop CfOptions entries for
// CFs nothing declared, instead of panicking on them.
func (b *Builder) AllowExtraCfConfig() *Builder {
	b.allowExtraCfConfig = true
	return b
}

// DropUnknownCfs makes Build drop any CF the backend reports that no
// RegisterDatum call declared.
func (b *Builder) DropUnknownCfs() *Builder {
	b.dropUnknownCfs = true
	return b
}

func checkReserved(name string) {
	if strings.HasPrefix(name, ReservedPrefix) {
		panic(&ReservedNamespaceError{Cf: name})
	}
}

// CfOptions attaches backend-specific options to a CF by name, ahead
// of Build. Panics if name is in the reserved namespace.
func (b *Builder) CfOptions(name string, options any) *Builder {
	checkReserved(name)
	b.cfOpts[name] = cfEntry{kind: backend.Configured, options: options}
	return b
}

// CfOptionsReuseLast marks name to keep whatever options the backend
// already persisted for it. Only valid for a CF that exists prior to
// Build; Build panics otherwise.
func (b *Builder) CfOptionsReuseLast(name string) *Builder {
	checkReserved(name)
	b.cfOpts[name] = cfEntry{kind: backend.ReuseLast}
	return b
}

func (b *Builder) declare(name string) {
	checkReserved(name)
	if b.usedCfs[name] {
		panic(&DuplicateCfError{Cf: name})
	}
	b.usedCfs[name] = true
}

// RegisterDatum declares datum with b: datum.CF and every CF named by
// datum.Indexes are added to the builder's used-CF set (I3), panicking
// on a duplicate or a reserved name (I4), and a rebuild closure is
// recorded for each index, to run at Build time if that index's CF (or
// its datum CF) was freshly created.
//
// Go has no generic methods, so this is a package-level function
// rather than a Builder method — mirroring CfHandle/Transaction/
// RebuildIndex in db.go.
func RegisterDatum[T any](b *Builder, datum *Datum[T]) *Builder {
	b.declare(datum.CF)
	for _, idx := range datum.Indexes {
		names := idx.Cfs()
		for _, name := range names {
			b.declare(name)
		}
		idx := idx
		b.rebuilders = append(b.rebuilders, indexRebuilder{
			datumCf:  datum.CF,
			indexCfs: append([]string(nil), names...),
			rebuild: func(ctx context.Context, db *DB) error {
				return RebuildIndex(ctx, db, datum, idx)
			},
		})
	}
	return b
}

// Build validates the accumulated CF configuration against the used-CF
// set, opens the backend via the builder's Factory, and — for every
// index whose datum CF or any of its own CFs was freshly created by
// this Open call — runs that index's rebuild before returning the
// opened DB. This is the only place the "indexes are consistent with
// data before the database is served" invariant is established; no
// other transaction can observe the database until every such rebuild
// has run.
func (b *Builder) Build(ctx context.Context) (*DB, error) {
	if b.requireAllCfsConfigured {
		for name := range b.usedCfs {
			if _, ok := b.cfOpts[name]; !ok {
				panic(&CfMisconfiguredError{Cf: name, Reason: "RequireAllCfsConfigured is set but no CfOptions were given"})
			}
		}
	} else {
		for name := range b.usedCfs {
			if _, ok := b.cfOpts[name]; !ok {
				b.cfOpts[name] = cfEntry{kind: backend.NotConfigured}
			}
		}
	}

	if b.allowExtraCfConfig {
		for name := range b.cfOpts {
			if !b.usedCfs[name] {
				delete(b.cfOpts, name)
			}
		}
	} else {
		for name := range b.cfOpts {
			if !b.usedCfs[name] {
				panic(&CfMisconfiguredError{Cf: name, Reason: "CfOptions given but no Datum or Indexer declared this CF"})
			}
		}
	}

	existing, err := b.factory.ExistingCfs(ctx)
	if err != nil {
		return nil, err
	}
	existingSet := make(map[string]bool, len(existing))
	for _, name := range existing {
		existingSet[name] = true
	}

	cfConfigs := make([]backend.CfConfig, 0, len(b.usedCfs))
	for name := range b.usedCfs {
		entry := b.cfOpts[name]
		if entry.kind == backend.ReuseLast && !existingSet[name] {
			panic(&CfMisconfiguredError{Cf: name, Reason: "ReuseLast requested for a cf that does not already exist"})
		}
		cfConfigs = append(cfConfigs, backend.CfConfig{Name: name, Kind: entry.kind, Options: entry.options})
	}

	rawBackend, created, err := b.factory.Open(ctx, cfConfigs, b.dropUnknownCfs)
	if err != nil {
		return nil, err
	}
	db := &DB{backend: rawBackend}

	for _, r := range b.rebuilders {
		needsRebuild := created[r.datumCf]
		for _, cf := range r.indexCfs {
			if created[cf] {
				needsRebuild = true
			}
		}
		if !needsRebuild {
			continue
		}
		if err := r.rebuild(ctx, db); err != nil {
			_ = rawBackend.Close()
			return nil, err
		}
	}
	return db, nil
}
