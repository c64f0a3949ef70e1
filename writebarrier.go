// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

// writeBarrier implements spec §4.9: the mutator must call this before
// mutating any reference-bearing slot of obj. The barrier snapshots the
// object's current member values the first time it sees the object each
// cycle ("snapshot-at-log"), so the RC phase can later diff old against
// new referents without keeping a full shadow heap.
func writeBarrier(rc *rcEngine, addr uintptr) {
	hdr := headerOf(addr)
	if hdr.logged != 0 {
		return
	}
	hdr.logged = 1

	if hdr.isNew != 0 {
		// The new-object pass will process this object from scratch;
		// no snapshot needed (spec §4.9). It also clears logged again
		// alongside isNew (rc.go), since this early return sets logged
		// without ever handing this object to recordModified — without
		// that the object's write barrier would never fire again.
		return
	}

	rtti := hdr.rtti()
	if rtti == nil {
		return
	}
	snapshot := make([]uintptr, rtti.NumMembers)
	for i := uintptr(0); i < rtti.NumMembers; i++ {
		snapshot[i] = *memberSlot(addr, i)
	}
	rc.recordModified(addr, rtti.NumMembers, snapshot)
}
