// Package util holds small helpers shared across the kernel: integer
// rounding and the fixed-width little-endian reads/writes most on-disk
// structures need. Adapted from Biscuit's util.Roundup/Rounddown
// (biscuit/src/util/util.go) with Readn/Writen reworked onto
// encoding/binary over plain byte slices instead of unsafe.Pointer, since
// this port has no raw memory to take the address of.
package util

import "encoding/binary"

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

// Readn reads an n-byte (1, 2, 4, or 8) little-endian unsigned integer
// from a at off.
func Readn(a []byte, n, off int) int {
	if off < 0 || off+n > len(a) {
		panic("util: Readn out of bounds")
	}
	switch n {
	case 1:
		return int(a[off])
	case 2:
		return int(binary.LittleEndian.Uint16(a[off:]))
	case 4:
		return int(binary.LittleEndian.Uint32(a[off:]))
	case 8:
		return int(binary.LittleEndian.Uint64(a[off:]))
	default:
		panic("util: unsupported Readn size")
	}
}

// Writen writes val as an sz-byte little-endian integer into a at off.
func Writen(a []byte, sz, off, val int) {
	if off < 0 || off+sz > len(a) {
		panic("util: Writen out of bounds")
	}
	switch sz {
	case 1:
		a[off] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(a[off:], uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(a[off:], uint32(val))
	case 8:
		binary.LittleEndian.PutUint64(a[off:], uint64(val))
	default:
		panic("util: unsupported Writen size")
	}
}
