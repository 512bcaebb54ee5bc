package backend

import "context"

// CfConfigKind tags how a CF's options were (or weren't) configured on
// the Builder, mirroring the original Rust CfOptions enum.
type CfConfigKind int

const (
	// NotConfigured means the caller never called CfOptions for this
	// CF; the backend should use a sensible default.
	NotConfigured CfConfigKind = iota
	// Configured carries caller-supplied, backend-specific options.
	Configured
	// ReuseLast means "keep whatever options this CF already has on
	// disk" — only meaningful for a CF that already existed before
	// Open was called.
	ReuseLast
)

// CfConfig is one entry of the CF descriptor list a Factory opens with.
type CfConfig struct {
	Name    string
	Kind    CfConfigKind
	Options any // backend-specific; nil unless Kind == Configured
}

// Factory is the backend-specific "open a database" half of the
// contract, kept separate from Backend because opening involves
// reconciling against on-disk state the open Backend no longer needs to
// expose.
type Factory interface {
	// ExistingCfs enumerates CFs already persisted by a prior Open call.
	// Returns an empty slice for a backend with no persisted state (a
	// fresh on-disk database, or an in-memory backend).
	ExistingCfs(ctx context.Context) ([]string, error)

	// Open opens the backend with exactly the CFs named in cfs created
	// or reconciled as described by each entry's Kind, then drops any
	// backend-reported CF not present in cfs when dropUnknownCfs is
	// true. Open also reports, for each entry, whether the CF already
	// existed prior to this call (so the caller can run index-rebuild
	// closures only for freshly created CFs).
	Open(ctx context.Context, cfs []CfConfig, dropUnknownCfs bool) (Backend, map[string]bool /* created */, error)
}
