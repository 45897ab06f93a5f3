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

package physmem

import (
	"fmt"
	"io"
	"sync"
)

// RAM is a writable in-memory region.
type RAM struct {
	mu   sync.RWMutex
	data []byte
}

// NewRAM returns a zeroed RAM region of the given size.
func NewRAM(size uint64) *RAM {
	return &RAM{data: make([]byte, size)}
}

// Size implements Region.Size.
func (r *RAM) Size() uint64 {
	return uint64(len(r.data))
}

func (r *RAM) check(off int64) error {
	if off < 0 || uint64(off) > uint64(len(r.data)) {
		return fmt.Errorf("offset %#x outside RAM of size %#x", off, len(r.data))
	}
	return nil
}

// ReadAt implements io.ReaderAt.ReadAt.
func (r *RAM) ReadAt(p []byte, off int64) (int, error) {
	if err := r.check(off); err != nil {
		return 0, err
	}
	r.mu.RLock()
	n := copy(p, r.data[off:])
	r.mu.RUnlock()
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.WriteAt.
func (r *RAM) WriteAt(p []byte, off int64) (int, error) {
	if err := r.check(off); err != nil {
		return 0, err
	}
	r.mu.Lock()
	n := copy(r.data[off:], p)
	r.mu.Unlock()
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
