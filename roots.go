// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import "unsafe"

// rootScanner enumerates static roots and conservatively scans the
// mutator's stack for candidate pointers into the heap, per spec §4.6.
//
// A host mutator in the original C library is a normal call frame whose
// stack and registers the collector can read directly. A Go module has
// no portable way to read its caller's machine stack or register file
// (Go's own goroutine stacks are precisely typed, copied and relocated
// by the Go runtime's own GC, not by us) — so stack/register scanning is
// approximated here by reading the words between the address of a local
// variable at Create time and the address of a local variable at each
// Collect call, exactly the Boehm-GC style approximation of "stack top"
// via a stack-resident local. This is conservative in the same spirit
// spec §4.6/§9 describes: some of what is scanned will not be pointers,
// and the design treats that as over-retention, not error. Register
// scanning folds into this stack scan, since anything a live register
// holds across a call boundary has necessarily been spilled to the
// stack by the Go calling convention by the time Collect observes it.
type rootScanner struct {
	ba  *blockAllocator
	los *largeObjectSpace

	stackBase uintptr
	static    map[uintptr]struct{}
}

func newRootScanner(ba *blockAllocator, los *largeObjectSpace) *rootScanner {
	return &rootScanner{
		ba:        ba,
		los:       los,
		stackBase: stackMark(),
		static:    make(map[uintptr]struct{}),
	}
}

// addStaticRoot registers addr as a static root. Idempotent for the same
// address, per the Open Question resolution in spec §9.
func (rs *rootScanner) addStaticRoot(addr uintptr) {
	rs.static[addr] = struct{}{}
}

// scan returns the heap object base addresses reachable from every
// static root (re-read fresh, since the host may have overwritten the
// slot) and from a conservative scan of the stack range captured since
// Create. Static roots are host-declared and precise: the host vouches
// that the slot holds either null or a genuine object pointer. Stack
// words are not: any bit pattern that happens to alias a live object's
// interior is indistinguishable from a real reference, so every object
// the stack scan reaches is pinned, whether or not a static root also
// reaches it (spec §9, "[p]inning
// all conservatively discovered objects is required to preserve
// mutator integer-pointer ambiguity"). Pinning is one-way — once an
// object has ever looked reachable from an ambiguous stack word, it
// stays non-movable for the rest of its life, since a later scan could
// see the same alias again.
func (rs *rootScanner) scan() []uintptr {
	var roots []uintptr

	for addr := range rs.static {
		word := *(*uintptr)(unsafe.Pointer(addr))
		if base, ok := rs.resolve(word); ok {
			roots = append(roots, base)
		}
	}

	top := stackMark()
	lo, hi := top, rs.stackBase
	if lo > hi {
		lo, hi = hi, lo
	}
	for addr := lo; addr+ptrSize <= hi; addr += ptrSize {
		word := *(*uintptr)(unsafe.Pointer(addr))
		if base, ok := rs.resolve(word); ok {
			headerOf(base).pinned = 1
			roots = append(roots, base)
		}
	}

	return roots
}

// resolve tests whether word points into a block this collector owns or
// into a large-object cell, resolving an interior pointer down to the
// enclosing object's base via the owning block's object-start bitmap
// (spec §4.6). Large objects have no interior-pointer ambiguity to
// resolve: the address recorded by largeObjectSpace.allocate is always
// the object's base.
func (rs *rootScanner) resolve(word uintptr) (uintptr, bool) {
	if word == 0 {
		return 0, false
	}
	if rs.los.contains(word) {
		return word, true
	}
	if b := rs.ba.blockContaining(word); b != nil {
		if base, ok := b.objectStartBefore(word); ok {
			return base, true
		}
	}
	return 0, false
}

//go:noinline
func stackMark() uintptr {
	var x byte
	return uintptr(unsafe.Pointer(&x))
}
