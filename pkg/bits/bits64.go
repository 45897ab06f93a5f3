// Copyright 2018 The gVisor Authors.
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

// Package bits includes bit-manipulation helpers for 64-bit machine words:
// single-bit flag tests and contiguous field extraction and replacement.
package bits

// Width is the number of bits in a machine word handled by this package.
const Width = 64

// IsOn64 returns true if *all* bits set in 'bits' are set in 'mask'.
func IsOn64(mask, bits uint64) bool {
	return mask&bits == bits
}

// IsAnyOn64 returns true if *any* bit set in 'bits' is set in 'mask'.
func IsAnyOn64(mask, bits uint64) bool {
	return mask&bits != 0
}

// Mask64 returns a uint64 with all of the given bits set.
func Mask64(is ...int) uint64 {
	ret := uint64(0)
	for _, i := range is {
		ret |= MaskOf64(i)
	}
	return ret
}

// MaskOf64 is like Mask64, but sets only a single bit (more efficiently).
func MaskOf64(i int) uint64 {
	return uint64(1) << uint64(i)
}

// FieldMask64 returns a mask covering bits [bitIndex, bitIndex+size).
//
// Precondition: bitIndex+size <= Width.
func FieldMask64(bitIndex, size uint) uint64 {
	// A shift by 64 yields zero, so size == Width produces all ones.
	return ((uint64(1) << size) - 1) << bitIndex
}

// SumWidths returns the total of the given field widths.
func SumWidths(widths []uint) uint {
	var n uint
	for _, w := range widths {
		n += w
	}
	return n
}
