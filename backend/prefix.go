package backend

// NextPrefix computes the exclusive upper bound of the range of keys
// having prefix as a byte prefix: the right-most byte strictly below
// 0xFF is incremented by one and every trailing 0xFF byte is dropped
// (the "carry"). It reports ok=false when no such bound exists, i.e.
// prefix is empty or consists entirely of 0xFF bytes — callers must
// then scan prefix..unbounded instead.
//
// This is the exact algorithm spec.md mandates for ScanPrefix's default
// implementation, adapted from the original Rust backend trait's
// scan_prefix (plus_one helper) with one difference: carried bytes are
// dropped here rather than zero-filled.
func NextPrefix(prefix []byte) (next []byte, ok bool) {
	next = make([]byte, len(prefix))
	copy(next, prefix)
	for i := len(next) - 1; i >= 0; i-- {
		if next[i] < 0xFF {
			next[i]++
			return next[:i+1], true
		}
	}
	return nil, false
}

// PrefixRange builds the KeyRange a ScanPrefix default implementation
// should scan for prefix.
func PrefixRange(prefix []byte) KeyRange {
	next, ok := NextPrefix(prefix)
	if !ok {
		return KeyRange{Start: Bound{Kind: Inclusive, Key: prefix}}
	}
	return KeyRange{
		Start: Bound{Kind: Inclusive, Key: prefix},
		End:   Bound{Kind: Exclusive, Key: next},
	}
}
