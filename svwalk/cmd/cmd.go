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

// Package cmd holds implementations of the svwalk commands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
)

// parseValues parses 64-bit values written in any Go integer literal
// syntax, e.g. 0x80001000 or 0b1010.
func parseValues(args []string) ([]uint64, error) {
	vs := make([]uint64, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", arg, err)
		}
		vs = append(vs, v)
	}
	return vs, nil
}

// hex formats v for output.
func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

// stdout returns w, or os.Stdout if w is nil.
func stdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// sizeString formats a page size with a binary unit, e.g. 4K or 1G.
func sizeString(size uint64) string {
	for _, unit := range []string{"", "K", "M", "G", "T", "P"} {
		if size < 1024 || size%1024 != 0 {
			return strconv.FormatUint(size, 10) + unit
		}
		size /= 1024
	}
	return strconv.FormatUint(size, 10) + "E"
}
