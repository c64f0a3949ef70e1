// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import (
	"testing"
	"unsafe"
)

func TestAllocationsDoNotOverlap(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	type span struct{ lo, hi uintptr }
	var spans []span

	rtti := &RTTI{ObjectSize: headerSize + 2*ptrSize, NumMembers: 2}
	for i := 0; i < 200; i++ {
		p, err := c.Allocate(rtti)
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		lo := uintptr(p)
		spans = append(spans, span{lo, lo + rtti.ObjectSize})
	}

	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.lo < b.hi && b.lo < a.hi {
				t.Fatalf("allocation %d [%x,%x) overlaps %d [%x,%x)", i, a.lo, a.hi, j, b.lo, b.hi)
			}
		}
	}
}

func TestHeaderZeroedExceptRTTIAndNew(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	rtti := &RTTI{ObjectSize: headerSize + ptrSize, NumMembers: 1}
	p, err := c.Allocate(rtti)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	hdr := headerOf(uintptr(p))
	if hdr.refCount != 0 {
		t.Errorf("refCount = %d, want 0", hdr.refCount)
	}
	if hdr.spansLines != 0 || hdr.forwarded != 0 || hdr.logged != 0 || hdr.marked != 0 || hdr.pinned != 0 {
		t.Errorf("unexpected flag set: %+v", hdr)
	}
	if hdr.isNew != 1 {
		t.Errorf("isNew = %d, want 1", hdr.isNew)
	}
	if hdr.rtti() != rtti {
		t.Errorf("rtti() = %p, want %p", hdr.rtti(), rtti)
	}
}

func TestLargeObjectPinning(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	rtti := &RTTI{ObjectSize: 2048, NumMembers: 0}
	p, err := c.Allocate(rtti)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	addr := uintptr(p)
	var root uintptr = addr
	c.SetStaticRoot(unsafe.Pointer(&root))

	for i := 0; i < 3; i++ {
		c.Collect(true, true)
		if root != addr {
			t.Fatalf("large object address changed across collection: %x -> %x", addr, root)
		}
	}
}
