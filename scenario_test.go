// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import (
	"testing"
	"unsafe"
)

// resolveRoot dereferences a host-owned root slot the way a mutator
// must: following any forwarding pointer left by an evacuating
// collection, since the rewriting pass only fixes up heap-internal
// member slots, not external root storage.
func resolveRoot(addr uintptr) uintptr {
	if addr == 0 {
		return 0
	}
	if hdr := headerOf(addr); hdr.forwarded != 0 {
		return hdr.forwardingAddr()
	}
	return addr
}

func TestScenario_Smoke(t *testing.T) {
	c := mustCreate(t)

	p, err := c.Allocate(&RTTI{ObjectSize: 128, NumMembers: 0})
	if err != nil || p == nil {
		t.Fatalf("Allocate: %v, %v", p, err)
	}

	c.Collect(false, false)
	c.WriteBarrier(p)
	c.Destroy()
}

func TestScenario_StaticRootSurvival(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	rtti := &RTTI{ObjectSize: 128, NumMembers: 0}
	object, err := c.Allocate(rtti)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	c.Collect(false, false)
	c.WriteBarrier(object)

	var dummy uintptr = uintptr(object)
	c.SetStaticRoot(unsafe.Pointer(&dummy))

	c.Collect(false, false)

	final := resolveRoot(dummy)
	if final == 0 {
		t.Fatalf("dummy root cleared after collect")
	}
	hdr := headerOf(final)
	if rt := hdr.rtti(); rt == nil || rt.ObjectSize != rtti.ObjectSize {
		t.Fatalf("dummy root's header not intact: %v", rt)
	}
}

func TestScenario_ThreeNodeCycle(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	node := &RTTI{ObjectSize: headerSize + ptrSize, NumMembers: 1}
	a, err := c.Allocate(node)
	if err != nil {
		t.Fatalf("Allocate A: %v", err)
	}
	b, err := c.Allocate(node)
	if err != nil {
		t.Fatalf("Allocate B: %v", err)
	}
	cc, err := c.Allocate(node)
	if err != nil {
		t.Fatalf("Allocate C: %v", err)
	}
	setMember(a, 0, b)
	setMember(b, 0, cc)
	setMember(cc, 0, a)
	aAddr, bAddr, cAddr := uintptr(a), uintptr(b), uintptr(cc)

	// Nothing roots the cycle: no static root was registered for any
	// of A, B or C.
	c.Collect(false, true)

	if !isFreed(c, aAddr) {
		t.Errorf("node A survived cycle collection")
	}
	if !isFreed(c, bAddr) {
		t.Errorf("node B survived cycle collection")
	}
	if !isFreed(c, cAddr) {
		t.Errorf("node C survived cycle collection")
	}
}

func TestScenario_CompositeGraphMutation(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	compositeRTTI := &RTTI{ObjectSize: headerSize + 2*ptrSize, NumMembers: 2}
	counterRTTI := &RTTI{ObjectSize: headerSize + ptrSize, NumMembers: 0}

	comp, err := c.Allocate(compositeRTTI)
	if err != nil {
		t.Fatalf("Allocate composite: %v", err)
	}
	compositeAddr := uintptr(comp)
	var compositeRoot uintptr = compositeAddr
	c.SetStaticRoot(unsafe.Pointer(&compositeRoot))

	sub1, err := c.Allocate(counterRTTI)
	if err != nil {
		t.Fatalf("Allocate sub1: %v", err)
	}
	sub2, err := c.Allocate(counterRTTI)
	if err != nil {
		t.Fatalf("Allocate sub2: %v", err)
	}
	*payloadWord(sub1) = 0
	*payloadWord(sub2) = 0
	setMember(comp, 0, sub1)
	setMember(comp, 1, sub2)

	for iter := 0; iter < 3; iter++ {
		c.WriteBarrier(comp)

		old1 := *payloadWord(sub1)
		old2 := *payloadWord(sub2)

		sub1, err = c.Allocate(counterRTTI)
		if err != nil {
			t.Fatalf("Allocate sub1 iter %d: %v", iter, err)
		}
		sub2, err = c.Allocate(counterRTTI)
		if err != nil {
			t.Fatalf("Allocate sub2 iter %d: %v", iter, err)
		}
		*payloadWord(sub1) = old1 + 1
		*payloadWord(sub2) = old2 + 1
		setMember(comp, 0, sub1)
		setMember(comp, 1, sub2)

		c.Collect(false, false)
	}

	if uintptr(comp) != compositeAddr {
		t.Fatalf("composite address changed across in-place mutation: %x -> %x", compositeAddr, uintptr(comp))
	}
	if got := *payloadWord(sub1); got != 3 {
		t.Errorf("sub1 counter = %d, want 3", got)
	}
	if got := *payloadWord(sub2); got != 3 {
		t.Errorf("sub2 counter = %d, want 3", got)
	}
}

func TestScenario_EvacuationStability(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	const numComposites = 40
	const numSlots = 15

	leafRTTI := &RTTI{ObjectSize: headerSize + ptrSize, NumMembers: 0}
	compositeRTTI := &RTTI{ObjectSize: headerSize + numSlots*ptrSize, NumMembers: numSlots}

	roots := make([]uintptr, numComposites)
	wantTags := make([][numSlots]uintptr, numComposites)

	for i := 0; i < numComposites; i++ {
		comp, err := c.Allocate(compositeRTTI)
		if err != nil {
			t.Fatalf("Allocate composite %d: %v", i, err)
		}
		for j := 0; j < numSlots; j++ {
			leaf, err := c.Allocate(leafRTTI)
			if err != nil {
				t.Fatalf("Allocate leaf %d/%d: %v", i, j, err)
			}
			tag := uintptr(i*1000 + j)
			*payloadWord(leaf) = tag
			wantTags[i][j] = tag
			setMember(comp, uintptr(j), leaf)
		}
		roots[i] = uintptr(comp)
	}
	for i := range roots {
		c.SetStaticRoot(unsafe.Pointer(&roots[i]))
	}

	blocksBefore := len(c.ba.all)
	if blocksBefore < 4 {
		t.Fatalf("fixture only spans %d blocks, want >= 4 to exercise evacuation", blocksBefore)
	}

	c.Collect(true, true)

	for i, root := range roots {
		final := resolveRoot(root)
		if final == 0 {
			t.Fatalf("composite %d lost its root after evacuation", i)
		}
		hdr := headerOf(final)
		rtti := hdr.rtti()
		if rtti == nil || rtti.NumMembers != numSlots {
			t.Fatalf("composite %d header corrupt after evacuation", i)
		}
		for j := 0; j < numSlots; j++ {
			leaf := *memberSlot(final, uintptr(j))
			if leaf == 0 {
				t.Fatalf("composite %d slot %d lost its reference after evacuation", i, j)
			}
			if got := *payloadWord(unsafe.Pointer(leaf)); got != wantTags[i][j] {
				t.Fatalf("composite %d slot %d tag = %d, want %d", i, j, got, wantTags[i][j])
			}
		}
	}
}

func TestScenario_LargeAndSmallMixing(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	small := &RTTI{ObjectSize: headerSize + 8, NumMembers: 0}
	large := &RTTI{ObjectSize: 2048, NumMembers: 0}

	var smallAddrs, largeAddrs []uintptr
	for i := 0; i < 3; i++ {
		s, err := c.Allocate(small)
		if err != nil {
			t.Fatalf("Allocate small #%d: %v", i, err)
		}
		smallAddrs = append(smallAddrs, uintptr(s))

		l, err := c.Allocate(large)
		if err != nil {
			t.Fatalf("Allocate large #%d: %v", i, err)
		}
		largeAddrs = append(largeAddrs, uintptr(l))
	}

	c.Collect(false, false)

	for _, la := range largeAddrs {
		lhi := la + large.ObjectSize
		for _, sa := range smallAddrs {
			shi := sa + small.ObjectSize
			if sa < lhi && la < shi {
				t.Fatalf("small object at %x overlaps large object range [%x,%x)", sa, la, lhi)
			}
		}
	}
}
