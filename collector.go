// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rcx is a conservative, reference-counting Immix garbage
// collector exposed as an embeddable heap for a single-mutator, stop-
// the-world host. It combines sticky reference counting for the common
// non-cyclic case with Immix mark-region tracing, including opportunistic
// evacuation, for reclaiming cycles and defragmenting the heap.
package rcx

import (
	"sync"
	"unsafe"
)

// Collector is the public handle every operation is a method of,
// the Go-shaped counterpart to a C ABI's opaque collector handle.
// A Collector is not safe for concurrent use: it assumes a single
// mutator goroutine (spec §5). mu is not a concurrency primitive in the
// multi-mutator sense (that remains a non-goal); it only turns an
// accidental concurrent or reentrant call into an immediate panic
// instead of silently corrupting collector state.
type Collector struct {
	cfg Config
	mu  sync.Mutex

	ba       *blockAllocator
	small    *lineAllocator
	overflow *lineAllocator
	los      *largeObjectSpace
	roots    *rootScanner
	rc       *rcEngine
	tracer   *tracer
}

// lockExclusive asserts single-mutator entry and returns the unlock
// func to defer. Panics rather than blocking: a second caller arriving
// while one is in-flight is a misuse of the single-mutator contract
// (spec §5), not a condition to wait out.
func (c *Collector) lockExclusive() func() {
	if !c.mu.TryLock() {
		panic("rcx: concurrent or reentrant call into a single-mutator Collector")
	}
	return c.mu.Unlock
}

// Create reserves the initial heap budget from the OS, captures the
// stack base for conservative root scanning, and initializes every
// pool and buffer. It fails with ErrOutOfMemory if the initial OS
// reservation cannot be satisfied.
func Create(cfg Config) (*Collector, error) {
	cfg.normalize()

	c := &Collector{cfg: cfg}
	c.ba = newBlockAllocator(&c.cfg)
	for reserved := 0; reserved < c.cfg.InitialBlocks; reserved += c.cfg.RegionBlocks {
		if err := c.ba.growFreePool(); err != nil {
			return nil, err
		}
	}
	c.los = newLargeObjectSpace(&c.cfg)
	c.small = newLineAllocator(&c.cfg, true)
	c.overflow = newLineAllocator(&c.cfg, false)
	c.rc = newRCEngine(&c.cfg)
	c.tracer = newTracer(&c.cfg)
	c.roots = newRootScanner(c.ba, c.los)
	return c, nil
}

// Allocate selects an allocator by size class (small fits a line,
// medium spans several lines within a block, large goes to the
// large-object space) and returns a pointer to a zero-initialised
// header followed by object_size - header_size payload bytes. On
// exhaustion it triggers one recovery collection and retries once
// before giving up.
func (c *Collector) Allocate(rtti *RTTI) (unsafe.Pointer, error) {
	defer c.lockExclusive()()

	if rtti == nil || rtti.ObjectSize < headerSize+rtti.NumMembers*ptrSize {
		return nil, ErrInvalidRTTI
	}

	if addr, ok := c.tryAllocate(rtti); ok {
		return unsafe.Pointer(addr), nil
	}
	c.collectLocked(false, false)
	if addr, ok := c.tryAllocate(rtti); ok {
		return unsafe.Pointer(addr), nil
	}
	return nil, ErrOutOfMemory
}

func (c *Collector) tryAllocate(rtti *RTTI) (uintptr, bool) {
	switch classify(&c.cfg, rtti.ObjectSize) {
	case sizeLarge:
		addr, err := c.los.allocate(rtti.ObjectSize)
		if err != nil {
			return 0, false
		}
		c.initObject(addr, rtti, false)
		return addr, true
	case sizeMedium:
		return c.allocateFromEngine(c.overflow, rtti, true)
	default:
		return c.allocateFromEngine(c.small, rtti, false)
	}
}

// allocateFromEngine drives the needs-block protocol: try the
// current hole, and on exhaustion acquire one block
// from the block allocator (recyclable-preferred for the small
// allocator, fresh-preferred for the overflow allocator) before
// retrying exactly once.
func (c *Collector) allocateFromEngine(eng *lineAllocator, rtti *RTTI, spansLines bool) (uintptr, bool) {
	addr, needsBlock := eng.allocate(rtti.ObjectSize)
	if needsBlock {
		b := c.acquireBlockFor(eng)
		if b == nil {
			return 0, false
		}
		eng.bind(b)
		addr, needsBlock = eng.allocate(rtti.ObjectSize)
		if needsBlock {
			return 0, false
		}
	}
	eng.currentBlock().occupy(addr, rtti.ObjectSize)
	c.initObject(addr, rtti, spansLines)
	return addr, true
}

func (c *Collector) acquireBlockFor(eng *lineAllocator) *block {
	if eng.preferRecyclable {
		if b := c.ba.requestRecyclableBlock(); b != nil {
			return b
		}
	}
	b, err := c.ba.requestFreeBlock()
	if err != nil {
		return nil
	}
	return b
}

// initObject zeroes the header except rtti and new, and enqueues
// the object onto the RC engine's new buffer.
func (c *Collector) initObject(addr uintptr, rtti *RTTI, spansLines bool) {
	hdr := headerOf(addr)
	*hdr = header{}
	hdr.isNew = 1
	if spansLines {
		hdr.spansLines = 1
	}
	hdr.setRTTI(rtti)
	c.rc.recordNew(addr)
}

// Collect runs the sticky-RC phase unconditionally, then the Immix
// tracer when collectCycles is requested. evacuate only has effect
// together with collectCycles; otherwise it is ignored, since
// evacuation requires the tracer's reference-rewriting pass to stay
// correct.
func (c *Collector) Collect(evacuate, collectCycles bool) {
	defer c.lockExclusive()()
	c.collectLocked(evacuate, collectCycles)
}

// collectLocked is Collect's body, callable from Allocate's recovery
// path without re-entering lockExclusive (Allocate already holds it).
func (c *Collector) collectLocked(evacuate, collectCycles bool) {
	roots := c.roots.scan()
	c.rc.run(roots, c)
	if collectCycles {
		c.tracer.run(roots, c.ba, c.los, evacuate)
		// The sweep may have reclassified the block either bump
		// allocator is mid-filling (freed it, made it recyclable, or
		// handed it to evacuation); rebind lazily on the next Allocate.
		c.small.invalidateIfReleased()
		c.overflow.invalidateIfReleased()
	}
}

// SetStaticRoot registers addr as a static root: a pointer-sized slot
// the host owns, re-read fresh on every scan. Idempotent for the same
// address.
func (c *Collector) SetStaticRoot(addr unsafe.Pointer) {
	defer c.lockExclusive()()
	c.roots.addStaticRoot(uintptr(addr))
}

// WriteBarrier must be called before mutating any reference-bearing
// slot of obj.
func (c *Collector) WriteBarrier(obj unsafe.Pointer) {
	defer c.lockExclusive()()
	writeBarrier(c.rc, uintptr(obj))
}

// Destroy releases every OS-backed reservation this collector holds.
// Subsequent operations on c are undefined.
func (c *Collector) Destroy() {
	defer c.lockExclusive()()
	c.ba.releaseAll()
	c.los.releaseAll()
}

// freeObject, blockFor and isLarge satisfy collectorHooks, the narrow
// surface rc.go needs to reclaim an object regardless of size class.
func (c *Collector) freeObject(addr uintptr) {
	if c.los.contains(addr) {
		c.los.free(addr)
		return
	}
	if b := c.ba.blockContaining(addr); b != nil {
		b.vacate(addr)
	}
}

func (c *Collector) blockFor(addr uintptr) *block {
	return c.ba.blockContaining(addr)
}

func (c *Collector) isLarge(addr uintptr) bool {
	return c.los.contains(addr)
}
