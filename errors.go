package sakuhiki

import "fmt"

// ParseError reports a failure of a Datum[T]'s FromSlice, attributed to
// the CF and object key the failing bytes came from.
type ParseError struct {
	Cf        string
	ObjectKey []byte
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing datum at key %x in cf %q: %v", e.ObjectKey, e.Cf, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IndexConsistencyError reports that a query matched an index row whose
// object key is absent from the primary CF — an I1 violation, not an
// empty result, since a live index row must always have a live object
// behind it.
type IndexConsistencyError struct {
	ObjectCf  string
	ObjectKey []byte
}

func (e *IndexConsistencyError) Error() string {
	return fmt.Sprintf("index consistency violation: object key %x absent from cf %q", e.ObjectKey, e.ObjectCf)
}

// DuplicateCfError is raised when two declared datums or indexes claim
// the same CF name (I3).
type DuplicateCfError struct {
	Cf string
}

func (e *DuplicateCfError) Error() string {
	return fmt.Sprintf("cf %q declared by more than one datum or index", e.Cf)
}

// ReservedNamespaceError is raised when application code declares or
// configures a CF starting with the reserved prefix (I4).
type ReservedNamespaceError struct {
	Cf string
}

func (e *ReservedNamespaceError) Error() string {
	return fmt.Sprintf("cf %q starts with the reserved prefix %q", e.Cf, ReservedPrefix)
}

// CfMisconfiguredError reports a Builder validation failure: options
// given for a CF nothing declared, a required CF left unconfigured, or
// ReuseLast requested for a CF that doesn't already exist.
type CfMisconfiguredError struct {
	Cf     string
	Reason string
}

func (e *CfMisconfiguredError) Error() string {
	return fmt.Sprintf("cf %q misconfigured: %s", e.Cf, e.Reason)
}
