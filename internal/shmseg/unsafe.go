package shmseg

import "unsafe"

// unsafePointer reinterprets the first HeaderSize bytes of data as the
// header cell array. mmap always returns page-aligned memory, which
// satisfies the 8-byte alignment int64 atomics require.
func unsafePointer(data []byte) unsafe.Pointer {
	return unsafe.Pointer(&data[0])
}

// slotBytes returns the byte window for slot index i.
func slotBytes(data []byte, i, slotSize int64) []byte {
	off := HeaderSize + i*slotSize
	return data[off : off+slotSize]
}
