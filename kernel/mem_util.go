package kernel

import "unsafe"

// Memset sets size bytes at the given address to the supplied value. The first
// byte is written directly and the remainder is filled with log2(size) copy
// calls; page-sized regions are the common case.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
