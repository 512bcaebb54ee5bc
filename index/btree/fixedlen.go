package btree

import "golang.org/x/exp/constraints"

// FixedLen is a KeyExtractor whose extracted key is always Len bytes:
// Extract writes exactly Len bytes into the buffer it's given and
// reports whether datum belongs in the index. KeyLen of a stored row
// is always Len, regardless of its contents.
type FixedLen[T any] struct {
	Len     int
	Extract func(datum T, key []byte) (include bool)
}

func (f FixedLen[T]) LenHint(datum T) int { return f.Len }

func (f FixedLen[T]) ExtractKey(datum T, key []byte) ([]byte, bool) {
	start := len(key)
	key = append(key, make([]byte, f.Len)...)
	include := f.Extract(datum, key[start:])
	if !include {
		return key[:start], false
	}
	return key, true
}

func (f FixedLen[T]) KeyLen(storedKey []byte) int { return f.Len }

// FixedLenUint builds a FixedLen[T] over an unsigned integer field,
// encoded big-endian in width bytes so that byte-lexicographic index
// order matches numeric order. width must be large enough to hold K's
// range (e.g. 4 for a uint32 field); a width narrower than K's value
// silently truncates the high bytes, matching to_be_bytes truncation
// semantics in the source this is ported from.
func FixedLenUint[T any, K constraints.Unsigned](width int, extract func(T) (K, bool)) FixedLen[T] {
	return FixedLen[T]{
		Len: width,
		Extract: func(datum T, key []byte) bool {
			v, include := extract(datum)
			if !include {
				return false
			}
			uv := uint64(v)
			for i := width - 1; i >= 0; i-- {
				key[i] = byte(uv)
				uv >>= 8
			}
			return true
		},
	}
}
