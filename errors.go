// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcx

// Error is a sentinel-style error string, the same shape the standard
// library uses for its own package-level sentinels. The teacher instead
// panics with plainError/throw, because a runtime-internal invariant
// violation has nowhere recoverable to go; an embedded library hands
// the failure back to its caller instead.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrOutOfMemory is returned by Create when the initial OS memory
	// reservation fails, and by Allocate when allocation still fails
	// after the one in-line recovery collection spec §4.10 mandates.
	ErrOutOfMemory = Error("rcx: out of memory")

	// ErrInvalidRTTI is returned by Allocate when the RTTI descriptor's
	// ObjectSize is too small to hold the header plus its declared
	// member slots, which would corrupt the forwarding protocol.
	ErrInvalidRTTI = Error("rcx: invalid RTTI: object_size too small for header and members")
)
