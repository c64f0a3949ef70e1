// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

import "unsafe"

// testConfig returns a small-geometry configuration so tests exercise
// block acquisition, hole-finding and evacuation without reserving much
// OS memory.
func testConfig() Config {
	return Config{
		BlockSize:            4096,
		LineSize:             64,
		LargeObjectThreshold: 512,
		InitialBlocks:        2,
		RegionBlocks:         2,
		EvacuationFraction:   0.5,
	}
}

func mustCreate(t testingT) *Collector {
	c, err := Create(testConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

// testingT is the subset of *testing.T these helpers need, so they can
// live outside of any one _test.go file's import without re-importing
// "testing" everywhere.
type testingT interface {
	Fatalf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Helper()
}

func setMember(obj unsafe.Pointer, i uintptr, ref unsafe.Pointer) {
	*memberSlot(uintptr(obj), i) = uintptr(ref)
}

func getMember(obj unsafe.Pointer, i uintptr) unsafe.Pointer {
	return unsafe.Pointer(*memberSlot(uintptr(obj), i))
}

// clearNew simulates the passage of one RC cycle's new-object pass
// without running a full Collect, for tests that want to probe the
// write barrier against an already-non-new object in isolation.
func clearNew(obj unsafe.Pointer) {
	headerOf(uintptr(obj)).isNew = 0
}

// payloadWord returns the first payload word following the header of
// obj, for test fixtures that keep a plain (non-reference) counter or
// tag there instead of a traced member slot.
func payloadWord(obj unsafe.Pointer) *uintptr {
	return (*uintptr)(unsafe.Pointer(uintptr(obj) + headerSize))
}
