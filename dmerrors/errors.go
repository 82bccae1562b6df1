// Copyright 2024 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package dmerrors classifies the three error kinds the direct map core
// can raise: NotFound and OutOfSpace are recoverable, CorruptState is not.
package dmerrors

import (
	"github.com/pkg/errors"
)

// Sentinel causes. Use errors.Is against these, not against the wrapped
// error returned by the constructors below.
var (
	ErrNotFound     = errors.New("directmap: key not found")
	ErrOutOfMemory  = errors.New("directmap: scratch memory exhausted")
	ErrOutOfFile    = errors.New("directmap: file space exhausted")
	ErrCorruptState = errors.New("directmap: corrupt state")
)

// NotFound reports a missing key, the slot containing it was null, or a
// leaf bucket that a caller expected to be occupied was not. It is
// recoverable and is returned directly to the caller.
func NotFound(key uint64) error {
	return errors.Wrapf(ErrNotFound, "key %#x", key)
}

// OutOfSpace reports that the Memory substrate refused an allocation of
// the given size, in scratch or in the file depending on inFile. It is
// recoverable at the transaction boundary: the caller must discard the
// in-flight scratch allocations and abort.
func OutOfSpace(size int, inFile bool) error {
	if inFile {
		return errors.Wrapf(ErrOutOfFile, "requested %d bytes", size)
	}
	return errors.Wrapf(ErrOutOfMemory, "requested %d bytes", size)
}

// CorruptState reports an invariant violation observed during traversal,
// e.g. a condenser index pointing past num_entries with a matching low
// byte. It is fatal: the map housing it must be treated as unsound.
// Callers that detect this condition are expected to report it through
// internal/corelog.Crit (which terminates the process, matching the
// teacher's log.Crit idiom) before or instead of returning it; dmerrors
// itself has no dependency on the logging package.
func CorruptState(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorruptState, format, args...)
}

// IsCorrupt reports whether err was produced by CorruptState.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptState)
}

// Is reports whether err is, or wraps, target; pass one of the sentinels
// above to classify an error returned by NotFound, OutOfSpace or
// CorruptState.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
