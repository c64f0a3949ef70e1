// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import "go.uber.org/zap"

// Config carries the heap geometry that spec §3 describes as "fixed
// compile-time parameters." The teacher hardcodes this geometry as
// runtime package constants because it cannot be anything but fixed at
// build time; an embeddable library exposes the same knobs as
// Create-time configuration instead, the way region_alloc.go exposes
// DefaultRegionSize/MinRegionSize/MaxRegionSize as overridable constants.
type Config struct {
	// BlockSize is the size, in bytes, of a single heap block. Must be a
	// power of two; blocks are mmap'd aligned to this size.
	BlockSize uintptr

	// LineSize is the size, in bytes, of a line within a block.
	// LinesPerBlock is derived as BlockSize / LineSize.
	LineSize uintptr

	// LargeObjectThreshold is the per-block usable limit above which an
	// object is routed to the large-object space instead of a block.
	LargeObjectThreshold uintptr

	// InitialBlocks is the number of blocks reserved from the OS at
	// Create, rounded up to a whole number of RegionBlocks-sized regions.
	// Additional regions are reserved on demand, RegionBlocks blocks at a
	// time.
	InitialBlocks int

	// RegionBlocks is how many blocks a single OS reservation carves up
	// when the free pool runs dry.
	RegionBlocks int

	// EvacuationFraction is the fraction (0, 1] of the most-fragmented
	// blocks that declareEvacuationCandidates selects as evacuation
	// sources, per spec §4.8.
	EvacuationFraction float64

	// Logger receives structured debug and error output describing the
	// collector's own operation (free-pool growth, evacuation-candidate
	// selection, RC and tracer phase summaries, failed OS reservations
	// for blocks). Defaults to a no-op logger: silent unless
	// an embedder opts in, mirroring the teacher's trace.enabled gate.
	Logger *zap.Logger
}

// DefaultConfig returns the geometry spec.md suggests: a 32 KiB block, a
// 128 B line, and an 8 KiB large-object threshold.
func DefaultConfig() Config {
	return Config{
		BlockSize:            32 * 1024,
		LineSize:             128,
		LargeObjectThreshold: 8 * 1024,
		InitialBlocks:        16,
		RegionBlocks:         16,
		EvacuationFraction:   0.25,
		Logger:               zap.NewNop(),
	}
}

func (c *Config) linesPerBlock() uintptr {
	return c.BlockSize / c.LineSize
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.BlockSize == 0 {
		c.BlockSize = d.BlockSize
	}
	if c.LineSize == 0 {
		c.LineSize = d.LineSize
	}
	if c.LargeObjectThreshold == 0 {
		c.LargeObjectThreshold = d.LargeObjectThreshold
	}
	if c.InitialBlocks == 0 {
		c.InitialBlocks = d.InitialBlocks
	}
	if c.RegionBlocks == 0 {
		c.RegionBlocks = d.RegionBlocks
	}
	if c.EvacuationFraction == 0 {
		c.EvacuationFraction = d.EvacuationFraction
	}
}
