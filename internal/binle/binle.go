// Package binle holds the pure little-endian conversions used at the one
// point where format headers touch the stream. In-memory, every format
// header stays in host byte order; only binle.To*/From* cross the boundary.
package binle

import "encoding/binary"

func ToLE32(v uint32) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b
}

func FromLE32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func ToLE64(v uint64) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b
}

func FromLE64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
