// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

// blockState mirrors mSpanState in the teacher's mheap.go: a span (here,
// a block) moves through a small set of states, and the collector reads
// the state to decide what it may do with the block.
type blockState uint8

const (
	blockFree blockState = iota
	blockRecyclable
	blockUnavailable
	blockEvacuationCandidate
	blockEvacuationTarget
)

// block is a contiguous, BlockSize-aligned region of heap memory,
// subdivided into LinesPerBlock lines. Metadata lives in this side
// struct rather than in the block's own header, the way heapArena
// keeps bitmap/spans/pageInUse metadata outside the arena's own bytes.
type block struct {
	next, prev *block // intrusive list links, reserved for future use

	base uintptr
	size uintptr

	lineMarks []uint8 // one byte per line: 0 unmarked, 1 marked
	lineRefs  []int   // number of live objects currently occupying each line
	lineSize  uintptr

	// live maps every currently-live object's base address to its size.
	// It backs both interior-pointer resolution for the root scanner
	// (spec §4.6's "object-start bitmap") and object-granular freeing for
	// both the RC engine and the tracer's sweep.
	live map[uintptr]uintptr

	state blockState

	holeCursor int // first line of the hole an allocator last moved into; hole search itself resumes from the allocator's cursor

	region *region // owning OS reservation, for eventual release
}

func newBlock(base, size, lineSize uintptr, r *region) *block {
	lines := int(size / lineSize)
	return &block{
		base:      base,
		size:      size,
		lineMarks: make([]uint8, lines),
		lineRefs:  make([]int, lines),
		lineSize:  lineSize,
		live:      make(map[uintptr]uintptr),
		state:     blockFree,
		region:    r,
	}
}

func (b *block) lineIndex(addr uintptr) int {
	return int((addr - b.base) / b.lineSize)
}

func (b *block) lineCount() int {
	return len(b.lineMarks)
}

// occupy records a newly allocated object's line span as live: the
// lines it covers are marked and their live-object counts incremented,
// the converse of vacate below.
func (b *block) occupy(addr, size uintptr) {
	b.live[addr] = size
	first, last := b.lineIndex(addr), b.lineIndex(addr+size-1)
	for i := first; i <= last; i++ {
		b.lineRefs[i]++
		b.lineMarks[i] = 1
	}
}

// vacate releases a dead object's line span: live-object counts are
// decremented, and a line reverts to unmarked (an allocatable hole) the
// moment its count reaches zero. This is spec §4.7's "mark its lines
// unmarked and return the storage to the allocator's free-hole
// accounting," done at object granularity via a per-line reference
// count instead of per-object free lists.
func (b *block) vacate(addr uintptr) {
	size, ok := b.live[addr]
	if !ok {
		return
	}
	delete(b.live, addr)
	first, last := b.lineIndex(addr), b.lineIndex(addr+size-1)
	for i := first; i <= last; i++ {
		if b.lineRefs[i] > 0 {
			b.lineRefs[i]--
		}
		if b.lineRefs[i] == 0 {
			b.lineMarks[i] = 0
		}
	}
}

// objectStartBefore aligns a conservative interior pointer down to the
// nearest live object whose span covers addr, within this block.
func (b *block) objectStartBefore(addr uintptr) (uintptr, bool) {
	var best uintptr
	found := false
	for base, size := range b.live {
		if base <= addr && addr < base+size {
			if !found || base > best {
				best, found = base, true
			}
		}
	}
	return best, found
}

// markLine marks a single line live for the current trace cycle, without
// touching lineRefs (the tracer derives liveness by walking the graph;
// lineRefs is kept current by the vacate calls the tracer's sweep issues
// for dead objects and the occupy calls evacuation issues for copies,
// see tracer.go).
func (b *block) markLine(i int) {
	if i >= 0 && i < len(b.lineMarks) {
		b.lineMarks[i] = 1
	}
}

// markLines marks the lines an object of the given size occupies
// starting at addr live for this cycle. Per spec §4.1, conservative
// scanning means a marked line also marks its neighbour, widening the
// retained region by one line to guard against an interior pointer
// landing one line short of the real object start.
func (b *block) markLines(addr, size uintptr) {
	first := b.lineIndex(addr)
	last := b.lineIndex(addr + size - 1)
	for i := first; i <= last; i++ {
		b.markLine(i)
	}
	b.markLine(first - 1)
	b.markLine(last + 1)
}

func (b *block) clearLineMarks() {
	for i := range b.lineMarks {
		b.lineMarks[i] = 0
	}
}

// holeCount and markedLineCount drive fragmentation scoring for
// evacuation-candidate selection (spec §4.2).
func (b *block) holeCount() int {
	holes := 0
	inHole := false
	for _, m := range b.lineMarks {
		if m == 0 {
			if !inHole {
				holes++
				inHole = true
			}
		} else {
			inHole = false
		}
	}
	return holes
}

func (b *block) markedLineCount() int {
	n := 0
	for _, m := range b.lineMarks {
		if m != 0 {
			n++
		}
	}
	return n
}

func (b *block) freeLineCount() int {
	return len(b.lineMarks) - b.markedLineCount()
}

// nextHole finds the next run of at least minLines unmarked lines at or
// after the given starting line index. It returns the starting address
// of the hole, its length in lines, and whether one was found.
func (b *block) nextHole(fromLine int, minLines int) (addr uintptr, lines int, ok bool) {
	i := fromLine
	n := len(b.lineMarks)
	for i < n {
		if b.lineMarks[i] != 0 {
			i++
			continue
		}
		start := i
		for i < n && b.lineMarks[i] == 0 {
			i++
		}
		if i-start >= minLines {
			return b.base + uintptr(start)*b.lineSize, i - start, true
		}
	}
	return 0, 0, false
}

func (b *block) reset() {
	b.clearLineMarks()
	for i := range b.lineRefs {
		b.lineRefs[i] = 0
	}
	b.live = make(map[uintptr]uintptr)
	b.holeCursor = 0
	b.state = blockFree
}
