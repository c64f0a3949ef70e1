// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

// largeObjectSpace directly wraps the OS allocator for objects too big
// to fit a block's usable capacity (spec §4.5). Large objects carry the
// same header as block-resident ones, participate in RC and tracing
// identically, but are implicitly pinned: never evacuated, never placed
// in any block.
type largeObjectSpace struct {
	cfg     *Config
	objects map[uintptr]*region // object header address -> its own OS reservation
}

func newLargeObjectSpace(cfg *Config) *largeObjectSpace {
	return &largeObjectSpace{cfg: cfg, objects: make(map[uintptr]*region)}
}

func (los *largeObjectSpace) allocate(size uintptr) (uintptr, error) {
	r, err := reserveAligned(size, ptrSize)
	if err != nil {
		return 0, ErrOutOfMemory
	}
	los.objects[r.base] = r
	return r.base, nil
}

func (los *largeObjectSpace) contains(addr uintptr) bool {
	_, ok := los.objects[addr]
	return ok
}

func (los *largeObjectSpace) free(addr uintptr) {
	if r, ok := los.objects[addr]; ok {
		_ = r.release()
		delete(los.objects, addr)
	}
}

func (los *largeObjectSpace) all() []uintptr {
	addrs := make([]uintptr, 0, len(los.objects))
	for a := range los.objects {
		addrs = append(addrs, a)
	}
	return addrs
}

func (los *largeObjectSpace) releaseAll() {
	for _, r := range los.objects {
		_ = r.release()
	}
	los.objects = make(map[uintptr]*region)
}
