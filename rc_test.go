// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import "testing"

func isFreed(c *Collector, addr uintptr) bool {
	if c.los.contains(addr) {
		return false
	}
	b := c.ba.blockContaining(addr)
	if b == nil {
		return true
	}
	_, live := b.live[addr]
	return !live
}

func TestAcyclicGarbageReclaimedByRCOnly(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	leaf := &RTTI{ObjectSize: headerSize, NumMembers: 0}
	p, err := c.Allocate(leaf)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	addr := uintptr(p)

	// No root, no referrer: this object is acyclic garbage from the
	// moment it is allocated.
	c.Collect(false, false)

	if !isFreed(c, addr) {
		t.Fatalf("unreferenced object not reclaimed by RC-only collection")
	}
}

func TestAcyclicChainReclaimedByRCOnly(t *testing.T) {
	c := mustCreate(t)
	defer c.Destroy()

	node := &RTTI{ObjectSize: headerSize + ptrSize, NumMembers: 1}

	head, err := c.Allocate(node)
	if err != nil {
		t.Fatalf("Allocate head: %v", err)
	}
	tail, err := c.Allocate(node)
	if err != nil {
		t.Fatalf("Allocate tail: %v", err)
	}
	setMember(head, 0, tail)

	headAddr, tailAddr := uintptr(head), uintptr(tail)
	c.Collect(false, false)

	if !isFreed(c, headAddr) {
		t.Fatalf("head of unreferenced acyclic chain not reclaimed")
	}
	if !isFreed(c, tailAddr) {
		t.Fatalf("tail of unreferenced acyclic chain not reclaimed")
	}
}
