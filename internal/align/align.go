// Package align provides the page-size rounding arithmetic the
// descriptor package uses to turn a byte size into a page count and a
// byte offset into a (page index, intra-page offset) pair.
//
// Adapted from biscuit's util.Rounddown/Roundup (biscuit/src/util/util.go);
// the Min, Readn and Writen helpers that accompanied those there are
// dropped here because nothing in this engine needs a generic
// byte-width accessor — the descriptor package always copies whole runs
// of bytes, never single words of varying width.
package align

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Down rounds v down to the nearest multiple of b.
func Down[T Int](v, b T) T {
	return v - (v % b)
}

// Up rounds v up to the nearest multiple of b.
func Up[T Int](v, b T) T {
	return Down(v+b-1, b)
}

// PageCount returns ceil(size / pageSize).
func PageCount(size, pageSize int) int {
	return Up(size, pageSize) / pageSize
}

// Split returns the page index and intra-page offset for byte offset i.
func Split(i, pageSize int) (index, offset int) {
	return i / pageSize, i % pageSize
}
