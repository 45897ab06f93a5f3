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

package config

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML form of a target:
//
//	scheme = "sv39"
//	satp = "0x8000000000080000"
//
//	[[region]]
//	base = 0x80000000
//	path = "ram.bin"
type fileConfig struct {
	Scheme string `toml:"scheme"`

	// SATP is a string: a value with MODE set does not fit a TOML integer.
	SATP string `toml:"satp"`

	Regions []Region `toml:"region"`

	LockRegions bool `toml:"lock_regions"`
}

// loadFile applies the settings of the TOML file at path that are not among
// the explicitly set flags. Relative region paths are taken relative to the
// file.
func (c *Config) loadFile(path string, explicit map[string]bool) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("loading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %q: unknown keys %v", path, undecoded)
	}

	if md.IsDefined("scheme") && !explicit["scheme"] {
		if err := c.Scheme.Set(fc.Scheme); err != nil {
			return fmt.Errorf("config file %q: %w", path, err)
		}
	}
	if md.IsDefined("satp") && !explicit["satp"] {
		if err := c.SATP.Set(fc.SATP); err != nil {
			return fmt.Errorf("config file %q: satp: %w", path, err)
		}
	}
	if md.IsDefined("region") && !explicit["region"] {
		dir := filepath.Dir(path)
		for _, r := range fc.Regions {
			if r.Path == "" {
				return fmt.Errorf("config file %q: region at %#x has no path", path, r.Base)
			}
			if !filepath.IsAbs(r.Path) {
				r.Path = filepath.Join(dir, r.Path)
			}
			c.Regions = append(c.Regions, r)
		}
	}
	if md.IsDefined("lock_regions") && !explicit["lock-regions"] {
		c.LockRegions = fc.LockRegions
	}
	return nil
}
