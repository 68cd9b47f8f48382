// Package options defines rappel's process-wide, read-only configuration
// record. These are passed explicitly into
// the engine constructor rather than kept as mutable package globals; the
// only engine-mutable flag (all-regs display) lives on the engine itself.
package options

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Options is immutable once constructed.
type Options struct {
	// StartAddr is the fixed virtual address at which the code page is
	// mapped and at which every shot begins executing.
	StartAddr uint64
	// Verbosity controls internal diagnostic logging (0, 1, 2...).
	Verbosity int
	// RawBytes treats input as machine code, skipping the assembler bridge
	// (C1) entirely: piped stdin is taken byte for byte, and each
	// interactive line is read as hex digits.
	RawBytes bool
	// PassSignals forwards non-trap signals to the tracee on continue
	// instead of swallowing them.
	PassSignals bool
	// AllRegsAtStartup seeds the engine's mutable AllRegs toggle.
	AllRegsAtStartup bool
	// SavePath, if non-empty, is where the synthesized ELF image is
	// written (with executable permission) before the tracee execs it.
	SavePath string
	// Workspace is the directory holding history and config.toml.
	Workspace string
}

// Defaults returns the built-in configuration before any file or flag
// overrides are applied.
func Defaults() Options {
	return Options{
		StartAddr: 0x400000,
		Verbosity: 0,
	}
}

// fileOverrides is the subset of Options that may be set via
// <workspace>/config.toml. Unset fields are left untouched by
// LoadWorkspaceConfig.
type fileOverrides struct {
	StartAddr   *string `toml:"start_addr"`
	Verbosity   *int    `toml:"verbosity"`
	RawBytes    *bool   `toml:"raw_bytes"`
	PassSignals *bool   `toml:"pass_signals"`
	AllRegs     *bool   `toml:"all_regs"`
	SavePath    *string `toml:"save_path"`
}

// LoadWorkspaceConfig reads <workspace>/config.toml, if present, and
// applies its values on top of o. A missing file is not an error.
func LoadWorkspaceConfig(o Options, workspace string) (Options, error) {
	path := filepath.Join(workspace, "config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return o, nil
		}
		return o, fmt.Errorf("reading %s: %w", path, err)
	}

	var fo fileOverrides
	if _, err := toml.Decode(string(data), &fo); err != nil {
		return o, fmt.Errorf("parsing %s: %w", path, err)
	}

	if fo.StartAddr != nil {
		var addr uint64
		if _, err := fmt.Sscanf(*fo.StartAddr, "0x%x", &addr); err != nil {
			return o, fmt.Errorf("%s: start_addr %q: %w", path, *fo.StartAddr, err)
		}
		o.StartAddr = addr
	}
	if fo.Verbosity != nil {
		o.Verbosity = *fo.Verbosity
	}
	if fo.RawBytes != nil {
		o.RawBytes = *fo.RawBytes
	}
	if fo.PassSignals != nil {
		o.PassSignals = *fo.PassSignals
	}
	if fo.AllRegs != nil {
		o.AllRegsAtStartup = *fo.AllRegs
	}
	if fo.SavePath != nil {
		o.SavePath = *fo.SavePath
	}
	return o, nil
}
