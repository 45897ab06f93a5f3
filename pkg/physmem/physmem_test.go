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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
)

func ramWith(t *testing.T, data []byte) *RAM {
	t.Helper()
	r := NewRAM(uint64(len(data)))
	if _, err := r.WriteAt(data, 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	return r
}

func TestSpaceAddOverlap(t *testing.T) {
	s := NewSpace()
	if err := s.Add(0x1000, NewRAM(0x1000)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add(0x3000, NewRAM(0x1000)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for _, tc := range []struct {
		name string
		base uint64
		size uint64
		ok   bool
	}{
		{"before", 0x0, 0x1000, true},
		{"gap", 0x2000, 0x1000, true},
		{"overlaps start", 0x800, 0x1000, false},
		{"overlaps end", 0x1800, 0x1000, false},
		{"same base", 0x3000, 0x10, false},
		{"covers", 0x0, 0x10000, false},
		{"empty", 0x8000, 0, false},
		{"wraps", ^uint64(0) - 0x10, 0x100, false},
		{"ends at top", ^uint64(0) - 0xfff, 0x1000, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSpace()
			s.Add(0x1000, NewRAM(0x1000))
			s.Add(0x3000, NewRAM(0x1000))
			err := s.Add(tc.base, NewRAM(tc.size))
			if got := err == nil; got != tc.ok {
				t.Errorf("Add(%#x, %#x): got err %v, wanted ok=%v", tc.base, tc.size, err, tc.ok)
			}
		})
	}
}

func TestSpaceTopOfAddressSpace(t *testing.T) {
	const base = 0xfffffffffffff000
	s := NewSpace()
	top := NewRAM(0x1000)
	if _, err := top.WriteAt([]byte{1, 2, 3, 4}, 0xffc); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if err := s.Add(base, top); err != nil {
		t.Fatalf("Add(%#x, 0x1000) failed: %v", uint64(base), err)
	}
	got, err := s.ReadPhysical(^uint64(0)-3, 4)
	if err != nil {
		t.Fatalf("ReadPhysical of the last bytes failed: %v", err)
	}
	if want := []byte{1, 2, 3, 4}; !bytes.Equal(got, want) {
		t.Errorf("got %v, wanted %v", got, want)
	}
	if _, err := s.ReadPhysical(^uint64(0)-3, 5); !errors.Is(err, ErrUnmapped) {
		t.Errorf("read past the top: got err %v, wanted ErrUnmapped", err)
	}
	if err := s.Add(base-0x800, NewRAM(0x1000)); err == nil {
		t.Errorf("Add overlapping the top region succeeded")
	}
	if err := s.Add(base-0x1000, NewRAM(0x1000)); err != nil {
		t.Errorf("Add of the region just below failed: %v", err)
	}
}

func TestSpaceRegions(t *testing.T) {
	s := NewSpace()
	s.Add(0x3000, NewRAM(0x100))
	s.Add(0x1000, NewRAM(0x200))
	want := []RegionInfo{{Base: 0x1000, Size: 0x200}, {Base: 0x3000, Size: 0x100}}
	if diff := cmp.Diff(want, s.Regions()); diff != "" {
		t.Errorf("Regions mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Remove(0x1000); !ok {
		t.Fatalf("Remove(0x1000) found nothing")
	}
	if _, ok := s.Remove(0x1000); ok {
		t.Fatalf("second Remove(0x1000) succeeded")
	}
	if diff := cmp.Diff(want[1:], s.Regions()); diff != "" {
		t.Errorf("Regions after Remove mismatch (-want +got):\n%s", diff)
	}
}

func TestSpaceRead(t *testing.T) {
	s := NewSpace()
	s.Add(0x1000, ramWith(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}))
	s.Add(0x1008, ramWith(t, []byte{8, 9, 10, 11}))
	s.Add(0x2000, ramWith(t, []byte{0xaa, 0xbb}))

	for _, tc := range []struct {
		name   string
		addr   uint64
		length uint32
		want   []byte
	}{
		{"inside", 0x1002, 4, []byte{2, 3, 4, 5}},
		{"spans adjacent", 0x1006, 4, []byte{6, 7, 8, 9}},
		{"end of region", 0x2000, 2, []byte{0xaa, 0xbb}},
		{"empty", 0x5000, 0, []byte{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ReadPhysical(tc.addr, tc.length)
			if err != nil {
				t.Fatalf("ReadPhysical(%#x, %d) failed: %v", tc.addr, tc.length, err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("ReadPhysical(%#x, %d): got %v, wanted %v", tc.addr, tc.length, got, tc.want)
			}
		})
	}

	for _, tc := range []struct {
		name   string
		addr   uint64
		length uint32
	}{
		{"below", 0x0, 8},
		{"gap", 0x1800, 8},
		{"runs past", 0x100a, 4},
		{"half mapped", 0x1fff, 2},
		{"wraps", ^uint64(0) - 2, 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.ReadPhysical(tc.addr, tc.length)
			if !errors.Is(err, ErrUnmapped) {
				t.Fatalf("ReadPhysical(%#x, %d): got err %v, wanted ErrUnmapped", tc.addr, tc.length, err)
			}
			var ae *AccessError
			if !errors.As(err, &ae) || ae.Addr != tc.addr {
				t.Errorf("ReadPhysical(%#x, %d): got %v, wanted *AccessError at %#x", tc.addr, tc.length, err, tc.addr)
			}
		})
	}
}

func TestSpaceWrite(t *testing.T) {
	s := NewSpace()
	s.Add(0x0, NewRAM(4))
	s.Add(0x4, NewRAM(4))
	if err := s.WritePhysical(0x2, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WritePhysical failed: %v", err)
	}
	got, err := s.ReadPhysical(0, 8)
	if err != nil {
		t.Fatalf("ReadPhysical failed: %v", err)
	}
	if want := []byte{0, 0, 1, 2, 3, 4, 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("got %v, wanted %v", got, want)
	}
	if err := s.WritePhysical(0x6, []byte{1, 2, 3, 4}); !errors.Is(err, ErrUnmapped) {
		t.Errorf("WritePhysical past end: got %v, wanted ErrUnmapped", err)
	}
}

func TestReaderFunc(t *testing.T) {
	var r Reader = ReaderFunc(func(addr uint64, length uint32) ([]byte, error) {
		return bytes.Repeat([]byte{byte(addr)}, int(length)), nil
	})
	got, err := r.ReadPhysical(7, 3)
	if err != nil {
		t.Fatalf("ReadPhysical failed: %v", err)
	}
	if want := []byte{7, 7, 7}; !bytes.Equal(got, want) {
		t.Errorf("got %v, wanted %v", got, want)
	}
}

func writeDump(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mem.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestFileRegion(t *testing.T) {
	path := writeDump(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	f, err := OpenFile(path, 2, 6, false)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if got, want := f.Size(), uint64(6); got != want {
		t.Errorf("Size: got %d, wanted %d", got, want)
	}

	s := NewSpace()
	if err := s.Add(0x80000000, f); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	got, err := s.ReadPhysical(0x80000001, 4)
	if err != nil {
		t.Fatalf("ReadPhysical failed: %v", err)
	}
	if want := []byte{3, 4, 5, 6}; !bytes.Equal(got, want) {
		t.Errorf("got %v, wanted %v", got, want)
	}
	if _, err := s.ReadPhysical(0x80000004, 4); !errors.Is(err, ErrUnmapped) {
		t.Errorf("read past region: got %v, wanted ErrUnmapped", err)
	}
}

func TestFileRegionWholeFile(t *testing.T) {
	path := writeDump(t, make([]byte, 4096))
	f, err := OpenFile(path, 0, 0, false)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if got, want := f.Size(), uint64(4096); got != want {
		t.Errorf("Size: got %d, wanted %d", got, want)
	}
}

func TestFileRegionBounds(t *testing.T) {
	path := writeDump(t, make([]byte, 16))
	for _, tc := range []struct {
		name   string
		offset int64
		size   uint64
	}{
		{"negative offset", -1, 0},
		{"offset past end", 17, 0},
		{"size past end", 8, 9},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if f, err := OpenFile(path, tc.offset, tc.size, false); err == nil {
				f.Close()
				t.Errorf("OpenFile(%d, %d) succeeded", tc.offset, tc.size)
			}
		})
	}
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing"), 0, 0, true); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("OpenFile of missing dump: got %v, wanted os.ErrNotExist", err)
	}
}

func TestFileRegionLock(t *testing.T) {
	path := writeDump(t, make([]byte, 16))

	writer := flock.New(path)
	if ok, err := writer.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	if f, err := OpenFile(path, 0, 0, true); !errors.Is(err, ErrLocked) {
		if err == nil {
			f.Close()
		}
		t.Fatalf("OpenFile of an exclusively locked dump: got %v, wanted ErrLocked", err)
	}
	if err := writer.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	f, err := OpenFile(path, 0, 0, true)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	// Shared locks do not exclude each other.
	g, err := OpenFile(path, 0, 0, true)
	if err != nil {
		t.Fatalf("second OpenFile failed: %v", err)
	}
	g.Close()
	if err := f.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSpaceClose(t *testing.T) {
	path := writeDump(t, make([]byte, 16))
	f, err := OpenFile(path, 0, 0, true)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	s := NewSpace()
	if err := s.Add(0, f); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add(0x1000, NewRAM(16)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := s.Regions(); len(got) != 0 {
		t.Errorf("regions after Close: %v", got)
	}

	// The shared lock is gone.
	writer := flock.New(path)
	if ok, err := writer.TryLock(); err != nil || !ok {
		t.Errorf("TryLock after Close: ok=%v err=%v", ok, err)
	}
	writer.Unlock()
}
