// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package physmem provides physical memory sources for page-table walks.
//
// The walker only needs a Reader. Space assembles a physical address space
// from regions (raw dump files, in-memory RAM) placed at base addresses.
package physmem

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnmapped is returned when a physical address is not backed by any
// region.
var ErrUnmapped = errors.New("physical address not backed by memory")

// ErrLocked is returned by OpenFile when another process holds an exclusive
// lock on a dump.
var ErrLocked = errors.New("memory dump is locked by another process")

// Reader reads raw bytes at a physical address.
//
// Implementations must return exactly length bytes on success and must be
// safe for concurrent use if callers translate concurrently.
type Reader interface {
	ReadPhysical(addr uint64, length uint32) ([]byte, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(addr uint64, length uint32) ([]byte, error)

// ReadPhysical implements Reader.ReadPhysical.
func (f ReaderFunc) ReadPhysical(addr uint64, length uint32) ([]byte, error) {
	return f(addr, length)
}

// Region is a contiguous run of physical memory, addressed from zero.
type Region interface {
	io.ReaderAt

	// Size returns the number of bytes in the region.
	Size() uint64
}

// AccessError describes a failed physical access.
type AccessError struct {
	Addr   uint64
	Length uint64
	Err    error
}

// Error implements error.Error.
func (e *AccessError) Error() string {
	return fmt.Sprintf("physical access [%#x, %#x): %v", e.Addr, e.Addr+e.Length, e.Err)
}

// Unwrap returns the underlying error.
func (e *AccessError) Unwrap() error {
	return e.Err
}
