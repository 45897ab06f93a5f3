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

// Package config provides basic infrastructure to set configuration settings
// for svwalk. Each setting that can be changed from the command line must
// have its flag registered in RegisterFlags and a field in Config tagged with
// the flag name.
package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"svwalk.dev/svwalk/pkg/log"
	"svwalk.dev/svwalk/pkg/physmem"
	"svwalk.dev/svwalk/pkg/sv"
)

// Config holds configuration that is not part of a single subcommand.
type Config struct {
	// ConfigFile is a TOML file describing the target. Flags given on the
	// command line take precedence over it.
	ConfigFile string `flag:"config"`

	// Scheme is the translation scheme, or auto to choose it from the
	// satp mode.
	Scheme SchemeName `flag:"scheme"`

	// SATP is the value of the satp register of the target.
	SATP Hex64 `flag:"satp"`

	// Regions places physical memory dumps in the target's address space.
	Regions RegionList `flag:"region"`

	// LockRegions takes a shared advisory lock on each dump while it is
	// open.
	LockRegions bool `flag:"lock-regions"`

	// LockTimeout is how long to wait for another process to release its
	// exclusive lock on a dump.
	LockTimeout time.Duration `flag:"lock-timeout"`

	// LogFilename is the filename errors are logged to, if not empty.
	LogFilename string `flag:"log"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if not empty.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// FaultLogInterval is the minimum time between warnings about
	// individual faults in a batch translation.
	FaultLogInterval time.Duration `flag:"fault-log-interval"`
}

func (c *Config) validate() error {
	switch c.DebugLogFormat {
	case "text", "json", "json-k8s":
	default:
		return fmt.Errorf("invalid debug-log-format %q, must be 'text', 'json', or 'json-k8s'", c.DebugLogFormat)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock-timeout must not be negative, got %v", c.LockTimeout)
	}
	if c.FaultLogInterval < 0 {
		return fmt.Errorf("fault-log-interval must not be negative, got %v", c.FaultLogInterval)
	}
	return nil
}

// Log logs the settings that differ from their defaults.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.ToFlags() {
		log.Infof("\t%s", f)
	}
}

// TranslationScheme returns the configured scheme, or nil if it is to be
// chosen from the satp mode.
func (c *Config) TranslationScheme() (*sv.Scheme, error) {
	if c.Scheme == SchemeAuto {
		return nil, nil
	}
	return sv.LookupScheme(string(c.Scheme))
}

// OpenSpace opens the configured dumps and places them in a new address
// space. The caller must close the space.
func (c *Config) OpenSpace(ctx context.Context) (*physmem.Space, error) {
	space := physmem.NewSpace()
	for _, r := range c.Regions {
		f, err := c.openRegion(ctx, r)
		if err != nil {
			space.Close()
			return nil, fmt.Errorf("opening region %v: %w", r, err)
		}
		if err := space.Add(r.Base, f); err != nil {
			f.Close()
			space.Close()
			return nil, fmt.Errorf("placing region %v: %w", r, err)
		}
		log.Debugf("Region %v: [%#x, %#x)", r, r.Base, r.Base+f.Size())
	}
	return space, nil
}

// lockRetryInterval is the time between attempts to lock a dump.
const lockRetryInterval = 100 * time.Millisecond

// openRegion opens the dump of r. A dump locked by a writer is retried until
// LockTimeout has passed.
func (c *Config) openRegion(ctx context.Context, r Region) (*physmem.File, error) {
	ctx, cancel := context.WithTimeout(ctx, c.LockTimeout)
	defer cancel()

	var f *physmem.File
	op := func() error {
		var err error
		f, err = physmem.OpenFile(r.Path, r.Offset, r.Size, c.LockRegions)
		if err != nil && !errors.Is(err, physmem.ErrLocked) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Debugf("Waiting for %q: %v", r.Path, err)
		}
		return err
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(lockRetryInterval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return f, nil
}

// SchemeName is a translation scheme name, or "auto".
type SchemeName string

// SchemeAuto chooses the scheme from the satp mode.
const SchemeAuto SchemeName = "auto"

func schemeNamePtr(v SchemeName) *SchemeName {
	return &v
}

// Set implements flag.Value.
func (s *SchemeName) Set(v string) error {
	v = strings.ToLower(v)
	if SchemeName(v) != SchemeAuto {
		if _, err := sv.LookupScheme(v); err != nil {
			return err
		}
	}
	*s = SchemeName(v)
	return nil
}

// Get implements flag.Getter.
func (s *SchemeName) Get() any {
	return *s
}

// String implements flag.Value.
func (s SchemeName) String() string {
	return string(s)
}

// Hex64 is a 64-bit value displayed in hex. Set accepts any Go integer
// literal syntax.
type Hex64 uint64

func hex64Ptr(v Hex64) *Hex64 {
	return &v
}

// Set implements flag.Value.
func (h *Hex64) Set(v string) error {
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", v, err)
	}
	*h = Hex64(n)
	return nil
}

// Get implements flag.Getter.
func (h *Hex64) Get() any {
	return *h
}

// String implements flag.Value.
func (h Hex64) String() string {
	return fmt.Sprintf("%#x", uint64(h))
}

// Region places a physical memory dump at a base address.
type Region struct {
	// Base is the physical address of the first byte of the region.
	Base uint64 `toml:"base"`

	// Path is the dump file.
	Path string `toml:"path"`

	// Offset is the file offset of the first byte of the region.
	Offset int64 `toml:"offset"`

	// Size is the size of the region. Zero extends the region to the end
	// of the file.
	Size uint64 `toml:"size"`
}

// ParseRegion parses "base=path[@offset[+size]]". A trailing "@..." that
// does not parse as numbers is taken to be part of the path.
func ParseRegion(s string) (Region, error) {
	baseStr, path, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return Region{}, fmt.Errorf("invalid region %q, must be base=path[@offset[+size]]", s)
	}
	base, err := strconv.ParseUint(baseStr, 0, 64)
	if err != nil {
		return Region{}, fmt.Errorf("invalid region base %q: %w", baseStr, err)
	}
	r := Region{Base: base, Path: path}
	if i := strings.LastIndexByte(path, '@'); i > 0 {
		offStr, sizeStr, hasSize := strings.Cut(path[i+1:], "+")
		off, offErr := strconv.ParseInt(offStr, 0, 64)
		var size uint64
		var sizeErr error
		if hasSize {
			size, sizeErr = strconv.ParseUint(sizeStr, 0, 64)
		}
		if offErr == nil && sizeErr == nil {
			r.Path, r.Offset, r.Size = path[:i], off, size
		}
	}
	return r, nil
}

// String returns the region in the form ParseRegion accepts.
func (r Region) String() string {
	s := fmt.Sprintf("%#x=%s", r.Base, r.Path)
	switch {
	case r.Size != 0:
		s += fmt.Sprintf("@%#x+%#x", r.Offset, r.Size)
	case r.Offset != 0:
		s += fmt.Sprintf("@%#x", r.Offset)
	}
	return s
}

// RegionList is a repeatable region flag. Each value may also hold several
// comma-separated regions.
type RegionList []Region

// Set implements flag.Value.
func (l *RegionList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		r, err := ParseRegion(s)
		if err != nil {
			return err
		}
		*l = append(*l, r)
	}
	return nil
}

// Get implements flag.Getter.
func (l *RegionList) Get() any {
	return *l
}

// String implements flag.Value.
func (l RegionList) String() string {
	parts := make([]string, 0, len(l))
	for _, r := range l {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}
