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

package sv

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"svwalk.dev/svwalk/pkg/physmem"
)

// ControlReader returns the current satp value.
type ControlReader func() (uint64, error)

// StaticControl returns a ControlReader that always returns v.
func StaticControl(v uint64) ControlReader {
	return func() (uint64, error) { return v, nil }
}

// Translator translates addresses of a target whose satp and physical memory
// are read through the given capabilities. A missing capability makes every
// translation that needs it fail with an AccessError fault.
type Translator struct {
	// Memory reads physical memory.
	Memory physmem.Reader

	// Control reads satp. It is called once per translation; values are
	// never cached.
	Control ControlReader
}

var (
	errNoControl = errors.New("no satp reader")
	errNoMemory  = errors.New("no physical memory reader")
)

func (t *Translator) readControl() (uint64, error) {
	if t.Control == nil {
		return 0, errNoControl
	}
	return t.Control()
}

func (t *Translator) memory() physmem.Reader {
	if t.Memory == nil {
		return physmem.ReaderFunc(func(uint64, uint32) ([]byte, error) {
			return nil, errNoMemory
		})
	}
	return t.Memory
}

// Translate reads satp and walks the page tables for va with scheme s. A nil
// scheme is chosen from the satp mode.
//
// Translation failures are *Fault errors. A nil scheme with a satp mode no
// scheme implements is reported as a plain error.
func (t *Translator) Translate(s *Scheme, va uint64) (*Translation, error) {
	raw, err := t.readControl()
	if err != nil {
		return nil, &Fault{Kind: AccessError, Virtual: va, Level: -1, Err: fmt.Errorf("reading satp: %w", err)}
	}
	satp := DecodeSATP(raw)
	if s == nil {
		if !satp.Mode.Translating() {
			return nil, &Fault{Kind: TranslationDisabled, Virtual: va, Level: -1}
		}
		if s, err = SchemeForMode(satp.Mode); err != nil {
			return nil, err
		}
	}
	return Walk(s, satp, va, t.memory())
}

// Result is the outcome of one translation in a batch.
type Result struct {
	Virtual     uint64
	Translation *Translation
	Err         error
}

// TranslateAll translates each address independently, running up to
// parallelism translations at once (unbounded if parallelism <= 0). Results
// are in input order. Faults are reported per address; only cancellation of
// ctx fails the batch.
func (t *Translator) TranslateAll(ctx context.Context, s *Scheme, vas []uint64, parallelism int) ([]Result, error) {
	results := make([]Result, len(vas))
	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, va := range vas {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tr, err := t.Translate(s, va)
			results[i] = Result{Virtual: va, Translation: tr, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
