// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// region is an OS-backed slab a group of blocks (or a single large
// object) is carved out of. The teacher reserves heap arenas straight
// off the OS in mmap.go/sysReserveAligned; this is the same idea
// expressed through golang.org/x/sys/unix instead of runtime-internal
// assembly, since a library outside package runtime has no other way
// to reach mmap(2).
type region struct {
	base uintptr
	size uintptr
	mem  []byte // keeps the mapping's backing memory reachable for Go's own GC
}

// reserveAligned reserves size bytes aligned to align by over-reserving
// align extra bytes, the way sysReserveAligned (malloc.go) aligns heap
// arenas, and placing the region at the first aligned address inside
// the mapping. unix.Munmap only accepts a whole mapping it returned, so
// the unaligned head and tail are not trimmed: they stay mapped and are
// released together with the region. align must be a power of two.
func reserveAligned(size, align uintptr) (*region, error) {
	raw, err := unix.Mmap(-1, 0, int(size+align), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, ErrOutOfMemory
	}

	base := uintptr(unsafe.Pointer(&raw[0]))
	alignedBase := (base + align - 1) &^ (align - 1)
	return &region{base: alignedBase, size: size, mem: raw}, nil
}

func (r *region) release() error {
	return unix.Munmap(r.mem)
}
