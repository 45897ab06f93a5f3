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
	"os"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
	"svwalk.dev/svwalk/pkg/log"
)

// File is a read-only region backed by a raw physical memory dump.
type File struct {
	f *os.File

	// offset is the file offset of the first byte of the region.
	offset int64

	// size is the region size, fixed at open time.
	size uint64

	// lock is the shared advisory lock held on the dump, or nil.
	lock *flock.Flock
}

// OpenFile opens the dump at path as a region starting at file offset
// 'offset'. A zero size extends the region to the end of the file.
//
// If lock is set, a shared advisory lock is taken on the dump and OpenFile
// fails if a writer holds it exclusively.
func OpenFile(path string, offset int64, size uint64, lock bool) (*File, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d for %q", offset, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var fl *flock.Flock
	ok := false
	defer func() {
		if !ok {
			f.Close()
			unlock(fl)
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if offset > fi.Size() {
		return nil, fmt.Errorf("offset %#x past end of %q (size %#x)", offset, path, fi.Size())
	}
	avail := uint64(fi.Size() - offset)
	switch {
	case size == 0:
		size = avail
	case size > avail:
		return nil, fmt.Errorf("region of size %#x at offset %#x exceeds %q (size %#x)", size, offset, path, fi.Size())
	}

	// The file must exist before locking: flock creates missing paths.
	if lock {
		fl = flock.New(path)
		locked, err := fl.TryRLock()
		if err != nil {
			return nil, fmt.Errorf("locking %q: %w", path, err)
		}
		if !locked {
			fl = nil
			return nil, fmt.Errorf("%q: %w", path, ErrLocked)
		}
	}
	ok = true
	log.Debugf("Opened memory dump %q: offset %#x, size %#x, locked: %t", path, offset, size, lock)
	return &File{f: f, offset: offset, size: size, lock: fl}, nil
}

func unlock(fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Unlock(); err != nil {
		log.Warningf("Unlocking %q: %v", fl.Path(), err)
	}
}

// Size implements Region.Size.
func (f *File) Size() uint64 {
	return f.size
}

// ReadAt implements io.ReaderAt.ReadAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off) > f.size {
		return 0, fmt.Errorf("offset %#x outside region of size %#x", off, f.size)
	}
	var eof error
	if rem := f.size - uint64(off); uint64(len(p)) > rem {
		p = p[:rem]
		eof = io.EOF
	}
	fd := int(f.f.Fd())
	done := 0
	for done < len(p) {
		n, err := unix.Pread(fd, p[done:], f.offset+off+int64(done))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return done, &os.PathError{Op: "pread", Path: f.f.Name(), Err: err}
		}
		if n == 0 {
			return done, io.ErrUnexpectedEOF
		}
		done += n
	}
	return done, eof
}

// Close releases the dump and its lock.
func (f *File) Close() error {
	err := f.f.Close()
	unlock(f.lock)
	return err
}
