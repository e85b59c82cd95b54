// Package config loads capture profiles describing known target boards.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Profile describes how to capture SRAM from one board family: which OpenOCD
// config files to load and where the SRAM lives in the address space.
// Pointer fields distinguish "unset" from zero so a JSON file can override
// only some fields of a builtin profile.
type Profile struct {
	Interface *string `json:"interface,omitempty"`
	Target    *string `json:"target,omitempty"`
	SRAMBase  *string `json:"sram_base,omitempty"` // hex string, e.g. "0x20000000"
	SRAMSize  *string `json:"sram_size,omitempty"` // hex string, e.g. "0x14000"
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }

// builtinProfiles covers the boards on the lab bench. The st_nucleo_l1
// values match the STM32L152RE datasheet: 80 KiB SRAM at the standard
// Cortex-M SRAM base.
var builtinProfiles = map[string]Profile{
	"st_nucleo_l1": {
		Interface: ptrString("interface/stlink.cfg"),
		Target:    ptrString("board/st_nucleo_l1.cfg"),
		SRAMBase:  ptrString("0x20000000"),
		SRAMSize:  ptrString("0x14000"),
	},
	"st_nucleo_f4": {
		Interface: ptrString("interface/stlink.cfg"),
		Target:    ptrString("board/st_nucleo_f4.cfg"),
		SRAMBase:  ptrString("0x20000000"),
		SRAMSize:  ptrString("0x20000"),
	},
}

// Names returns the builtin profile names, for CLI usage output.
func Names() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	return names
}

// Lookup returns the builtin profile with the given name.
func Lookup(name string) (Profile, error) {
	p, ok := builtinProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// LoadProfiles loads additional or overriding profiles from a JSON file of
// the form {"name": {profile...}}. Fields omitted for a name that matches a
// builtin profile retain the builtin values, so partial overrides are safe.
func LoadProfiles(path string) (map[string]Profile, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("profile file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var loaded map[string]Profile
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}

	merged := make(map[string]Profile, len(builtinProfiles)+len(loaded))
	for name, p := range builtinProfiles {
		merged[name] = p
	}
	for name, p := range loaded {
		base := merged[name]
		merged[name] = base.merge(p)
	}

	for name, p := range merged {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid profile %q: %w", name, err)
		}
	}
	return merged, nil
}

// merge overlays set fields of other onto p.
func (p Profile) merge(other Profile) Profile {
	out := p
	if other.Interface != nil {
		out.Interface = other.Interface
	}
	if other.Target != nil {
		out.Target = other.Target
	}
	if other.SRAMBase != nil {
		out.SRAMBase = other.SRAMBase
	}
	if other.SRAMSize != nil {
		out.SRAMSize = other.SRAMSize
	}
	return out
}

// Validate checks that the profile is complete and its addresses parse.
func (p Profile) Validate() error {
	if p.Target == nil || *p.Target == "" {
		return fmt.Errorf("target config file is required")
	}
	if p.Interface == nil || *p.Interface == "" {
		return fmt.Errorf("interface config file is required")
	}
	if _, err := p.Base(); err != nil {
		return err
	}
	size, err := p.Size()
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("sram_size must be non-zero")
	}
	return nil
}

// Base returns the SRAM base address.
func (p Profile) Base() (uint32, error) {
	return parseField(p.SRAMBase, "sram_base")
}

// Size returns the SRAM size in bytes.
func (p Profile) Size() (uint32, error) {
	return parseField(p.SRAMSize, "sram_size")
}

// ParseNum parses a CLI-style address or size into a uint32. Values with a
// 0x prefix are hex; bare values are decimal.
func ParseNum(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseField(field *string, name string) (uint32, error) {
	if field == nil || *field == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := ParseNum(*field)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
