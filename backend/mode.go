// Package backend defines the minimal, uniform transactional key-value
// contract that every storage engine plugged into sakuhiki must satisfy:
// column-family handle resolution, a scoped transaction, and the handful
// of primitive operations (get, scan, scan-prefix, put, delete, clear,
// exclusive-lock) the core dispatches through.
package backend

// Mode is the permission level a transaction was opened with.
type Mode int

const (
	// ReadOnly transactions may Get/Scan but not mutate any CF.
	ReadOnly Mode = iota
	// ReadWrite transactions may freely Get/Scan/Put/Delete.
	ReadWrite
	// IndexRebuilding transactions may additionally Clear a CF and must
	// hold an exclusive lock on the datum CF they rebuild from.
	IndexRebuilding
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "ReadOnly"
	case ReadWrite:
		return "ReadWrite"
	case IndexRebuilding:
		return "IndexRebuilding"
	default:
		return "Mode(?)"
	}
}
