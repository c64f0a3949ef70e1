// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

// lineAllocator is a bump-pointer allocator that skips marked lines
// within its current block, the shared engine behind both the small
// (bump) and medium (overflow) allocators of spec §4.3/§4.4. Both are
// "the same kind of thing with a different block-acquisition policy,"
// the way the teacher's mcache wraps one bump cursor per spanClass
// rather than writing two allocators.
type lineAllocator struct {
	cfg *Config

	cur    *block
	cursor uintptr
	limit  uintptr

	// preferRecyclable selects which pool the orchestrator should draw
	// from on needsBlock: true for the small allocator (spec §4.3 wants
	// recycled blocks to reuse their holes), false for the overflow
	// allocator (spec §4.4 wants fresh blocks so a medium object isn't
	// squeezed into a hole too small for it to ever fit).
	preferRecyclable bool
}

func newLineAllocator(cfg *Config, preferRecyclable bool) *lineAllocator {
	return &lineAllocator{cfg: cfg, preferRecyclable: preferRecyclable}
}

func alignUp(n, to uintptr) uintptr {
	return (n + to - 1) &^ (to - 1)
}

// allocate attempts to satisfy size bytes from the current hole,
// advancing through holes in the current block when one is exhausted.
// It never crosses a block boundary; a true return for needsBlock means
// the caller must bind a new block and retry.
func (l *lineAllocator) allocate(size uintptr) (addr uintptr, needsBlock bool) {
	size = alignUp(size, ptrSize)

	for {
		if l.cur == nil {
			return 0, true
		}
		if l.cursor+size <= l.limit {
			addr = l.cursor
			l.cursor += size
			return addr, false
		}
		if !l.advanceHole(size) {
			return 0, true
		}
	}
}

// advanceHole moves the cursor/limit to the next hole in the current
// block big enough for size bytes, resuming from where the last hole
// left off (spec §4.1: "once a hole is exhausted, the allocator advances
// to the next hole in the same block").
func (l *lineAllocator) advanceHole(size uintptr) bool {
	minLines := int(alignUp(size, l.cur.lineSize) / l.cur.lineSize)
	fromLine := l.cur.lineIndex(l.cursor)
	addr, lines, ok := l.cur.nextHole(fromLine, minLines)
	if !ok {
		return false
	}
	l.cursor = addr
	l.limit = addr + uintptr(lines)*l.cur.lineSize
	l.cur.holeCursor = l.cur.lineIndex(addr)
	return true
}

// bind installs a fresh or recycled block as the allocator's current
// block and positions the cursor at its first hole.
func (l *lineAllocator) bind(b *block) {
	l.cur = b
	l.cursor = b.base
	l.limit = b.base
	l.advanceHole(ptrSize)
}

func (l *lineAllocator) currentBlock() *block {
	return l.cur
}

// invalidateIfReleased drops the current block once a cycle collection
// has reclassified it out from under this allocator (back to the free
// or recyclable pool, or into evacuation). Binding a block sets its
// state to unavailable for as long as an allocator holds it; anything
// else means the block allocator is free to hand it to someone else,
// so this allocator must rebind before touching it again.
func (l *lineAllocator) invalidateIfReleased() {
	if l.cur != nil && l.cur.state != blockUnavailable {
		l.cur = nil
		l.cursor = 0
		l.limit = 0
	}
}
