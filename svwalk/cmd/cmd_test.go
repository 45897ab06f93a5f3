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

package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"
	"gopkg.in/yaml.v2"
	"svwalk.dev/svwalk/pkg/sv"
	"svwalk.dev/svwalk/pkg/sv/svtest"
	"svwalk.dev/svwalk/svwalk/config"
	"svwalk.dev/svwalk/svwalk/flag"
)

const ramBase = 0x80000000

// dumpTarget writes the RAM of b to a file and returns a config that loads
// it with b's satp.
func dumpTarget(t *testing.T, b *svtest.Builder, frames uint64, extra ...string) *config.Config {
	t.Helper()
	data, err := b.Space.ReadPhysical(ramBase, uint32(frames*uint64(b.Scheme.PageSize)))
	if err != nil {
		t.Fatalf("ReadPhysical failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ram.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(flags)
	args := append([]string{
		"--region=" + hex(ramBase) + "=" + path,
		"--satp=" + hex(b.SATP(0)),
	}, extra...)
	if err := flags.Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	conf, err := config.NewFromFlags(flags)
	if err != nil {
		t.Fatalf("NewFromFlags failed: %v", err)
	}
	return conf
}

// run executes c with args and returns its status and output.
func run(t *testing.T, c subcommands.Command, conf *config.Config, args ...string) (subcommands.ExitStatus, string) {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	f.SetOutput(io.Discard)
	f.Usage = func() {}
	c.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("Parse(%v) failed: %v", args, err)
	}
	var out bytes.Buffer
	switch c := c.(type) {
	case *Translate:
		c.stdout = &out
	case *Satp:
		c.stdout = &out
	case *PTE:
		c.stdout = &out
	case *Schemes:
		c.stdout = &out
	}
	status := c.Execute(context.Background(), f, conf)
	return status, out.String()
}

func TestTranslateJSON(t *testing.T) {
	const frames = 4
	b := svtest.New(sv.Sv39, ramBase, frames)
	if err := b.Map(0x1234, 2, 0x80000, sv.FlagRead|sv.FlagWrite); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	conf := dumpTarget(t, b, frames)

	status, out := run(t, new(Translate), conf, "-o", "json", "0x1234", "0x40000000")
	if status != subcommands.ExitFailure {
		t.Errorf("got status %v, wanted failure for the faulting address", status)
	}
	var got []translationRecord
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("Unmarshal(%q) failed: %v", out, err)
	}
	fault := &sv.Fault{Kind: sv.InvalidEntry, Virtual: 0x40000000, Level: 2, Addr: ramBase + 8}
	want := []translationRecord{
		{
			Virtual:  "0x1234",
			Physical: "0x80001234",
			Scheme:   "sv39",
			Access:   "rw-",
			Level:    2,
			PageSize: 1 << 30,
			PTE:      "0x20000007",
			PTEAddr:  "0x80000000",
		},
		{
			Virtual: "0x40000000",
			Level:   2,
			PTE:     "0x0",
			PTEAddr: "0x80000008",
			Fault:   "invalid page-table entry",
			Error:   fault.Error(),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateAutoScheme(t *testing.T) {
	const frames = 8
	b := svtest.New(sv.Sv48, ramBase, frames)
	const va = 0x7f1234567abc
	if err := b.Map(va, 0, 0x12345, sv.FlagRead|sv.FlagExecute); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	conf := dumpTarget(t, b, frames)
	status, out := run(t, new(Translate), conf, "-o", "yaml", "-trace", hex(va))
	if status != subcommands.ExitSuccess {
		t.Fatalf("got status %v: %s", status, out)
	}
	var got []translationRecord
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("Unmarshal(%q) failed: %v", out, err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, wanted 1", len(got))
	}
	if got[0].Scheme != "sv48" || got[0].Physical != "0x12345abc" || got[0].Access != "r-x" {
		t.Errorf("got %+v", got[0])
	}
	var levels []int
	for _, s := range got[0].Steps {
		levels = append(levels, s.Level)
	}
	if diff := cmp.Diff([]int{3, 2, 1, 0}, levels); diff != "" {
		t.Errorf("step levels mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateTraceTable(t *testing.T) {
	const frames = 4
	b := svtest.New(sv.Sv39, ramBase, frames)
	if err := b.Map(0x5000, 0, 0x42, sv.FlagRead); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	conf := dumpTarget(t, b, frames, "--scheme=sv39")
	status, out := run(t, new(Translate), conf, "-o", "table", "-trace", "-parallelism", "1", "0x5123")
	if status != subcommands.ExitSuccess {
		t.Fatalf("got status %v: %s", status, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// The header, the translation and three visited entries.
	if len(lines) != 5 {
		t.Fatalf("got %d lines, wanted 5:\n%s", len(lines), out)
	}
	if fields := strings.Fields(lines[1]); len(fields) < 5 || fields[1] != "0x42123" || fields[2] != "r--" || fields[4] != "4K" {
		t.Errorf("unexpected row %q", lines[1])
	}
	if !strings.Contains(lines[2], "entry "+hex(b.PTEAddr(b.Root, 0))) {
		t.Errorf("first step %q is not the root entry", lines[2])
	}
}

func TestTranslateCSV(t *testing.T) {
	const frames = 4
	b := svtest.New(sv.Sv39, ramBase, frames)
	if err := b.Map(0x200000, 1, 0x80200, sv.FlagRead|sv.FlagWrite|sv.FlagExecute); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	conf := dumpTarget(t, b, frames)
	status, out := run(t, new(Translate), conf, "-o", "csv", "0x2abcde")
	if status != subcommands.ExitSuccess {
		t.Fatalf("got status %v: %s", status, out)
	}
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, wanted 2", len(rows))
	}
	if diff := cmp.Diff([]string{"virtual", "physical", "access", "level", "page", "detail"}, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0x2abcde", "0x802abcde", "rwx", "1", "2M"}, rows[1][:5]); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateDisabled(t *testing.T) {
	const frames = 1
	b := svtest.New(sv.Sv39, ramBase, frames)
	conf := dumpTarget(t, b, frames, "--satp=0")
	status, out := run(t, new(Translate), conf, "-o", "table", "0x1000")
	if status != subcommands.ExitSuccess {
		t.Errorf("got status %v, wanted success", status)
	}
	if !strings.Contains(out, noTranslation) {
		t.Errorf("output %q does not say %q", out, noTranslation)
	}
}

func TestTranslateErrors(t *testing.T) {
	const frames = 1
	b := svtest.New(sv.Sv39, ramBase, frames)
	conf := dumpTarget(t, b, frames)
	for _, tc := range []struct {
		name string
		args []string
		want subcommands.ExitStatus
	}{
		{"no addresses", nil, subcommands.ExitUsageError},
		{"bad address", []string{"nope"}, subcommands.ExitFailure},
		{"bad format", []string{"-o", "xml", "0x1000"}, subcommands.ExitFailure},
	} {
		if status, _ := run(t, new(Translate), conf, tc.args...); status != tc.want {
			t.Errorf("%s: got status %v, wanted %v", tc.name, status, tc.want)
		}
	}

	// An unsupported satp mode fails the address.
	conf.SATP = config.Hex64(sv.SATP{Mode: 11, RootPPN: ramBase >> 12}.Encode())
	if status, out := run(t, new(Translate), conf, "-o", "json", "0x1000"); status != subcommands.ExitFailure || !strings.Contains(out, "no translation scheme") {
		t.Errorf("reserved mode: got status %v, output %q", status, out)
	}
}

func TestLookupOutput(t *testing.T) {
	d := &document{header: []string{"A"}, rows: [][]string{{"1"}}, value: map[string]int{"a": 1}}
	var buf bytes.Buffer
	out, err := lookupOutput(outputAuto, &buf)
	if err != nil {
		t.Fatalf("lookupOutput failed: %v", err)
	}
	if err := out(&buf, d); err != nil {
		t.Fatalf("output failed: %v", err)
	}
	// Not a terminal: json.
	if got, want := buf.String(), "{\n  \"a\": 1\n}\n"; got != want {
		t.Errorf("got %q, wanted %q", got, want)
	}
	if _, err := lookupOutput("xml", &buf); err == nil {
		t.Errorf("lookupOutput(xml) succeeded")
	}
}

func TestSatp(t *testing.T) {
	status, out := run(t, new(Satp), &config.Config{}, "-o", "json", "0x80000000000812d0")
	if status != subcommands.ExitSuccess {
		t.Fatalf("got status %v", status)
	}
	var got satpRecord
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("Unmarshal(%q) failed: %v", out, err)
	}
	want := satpRecord{
		Raw:       "0x80000000000812d0",
		Mode:      "sv39",
		RootPPN:   "0x812d0",
		RootTable: "0x812d0000",
		Levels:    3,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestSatpFromConfig(t *testing.T) {
	conf := &config.Config{SATP: 0}
	status, out := run(t, new(Satp), conf, "-o", "table")
	if status != subcommands.ExitSuccess {
		t.Fatalf("got status %v", status)
	}
	if !strings.Contains(out, noTranslation) {
		t.Errorf("output %q does not say %q", out, noTranslation)
	}
	d := satpDocument(sv.SATP{Mode: 12}.Encode())
	if last := d.rows[len(d.rows)-1]; last[1] != "unsupported mode" {
		t.Errorf("reserved mode: got row %v", last)
	}
}

func TestPTE(t *testing.T) {
	status, out := run(t, new(PTE), nil, "-o", "csv", "0x200005cf", "0x0", "0x21", "0x4")
	if status != subcommands.ExitSuccess {
		t.Fatalf("got status %v", status)
	}
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	want := [][]string{
		{"pte", "ppn", "flags", "rsw", "kind", "access"},
		{"0x200005cf", "0x80001", "da--xwrv", "0x1", "leaf", "rwx"},
		{"0x0", "0x0", "--------", "0x0", "invalid", ""},
		{"0x21", "0x0", "--g----v", "0x0", "pointer", ""},
		{"0x4", "0x0", "-----w--", "0x0", "invalid", ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if got := pteKind(sv.MakePTE(1, sv.FlagValid|sv.FlagWrite)); got != "reserved" {
		t.Errorf("pteKind(write-only) = %q, wanted reserved", got)
	}
}

func TestSchemes(t *testing.T) {
	status, out := run(t, new(Schemes), nil, "-o", "table")
	if status != subcommands.ExitSuccess {
		t.Fatalf("got status %v", status)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, wanted 4:\n%s", len(lines), out)
	}
	for i, want := range [][]string{
		{"sv39", "8", "3", "39", "4K", "1G"},
		{"sv48", "9", "4", "48", "4K", "512G"},
		{"sv57", "10", "5", "57", "4K", "256T"},
	} {
		if got := strings.Fields(lines[i+1])[:6]; !cmp.Equal(want, got) {
			t.Errorf("line %d: got %v, wanted %v", i+1, got, want)
		}
	}
}

func TestSizeString(t *testing.T) {
	for size, want := range map[uint64]string{
		0:        "0",
		1000:     "1000",
		4096:     "4K",
		6144:     "6K",
		2 << 20:  "2M",
		1 << 30:  "1G",
		1 << 60:  "1E",
		1536:     "1536",
		5 << 40:  "5T",
		3 << 50:  "3P",
		12 << 10: "12K",
	} {
		if got := sizeString(size); got != want {
			t.Errorf("sizeString(%d) = %q, wanted %q", size, got, want)
		}
	}
}
