package options

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	o := Defaults()
	if o.StartAddr != 0x400000 {
		t.Fatalf("default StartAddr = %#x, want 0x400000", o.StartAddr)
	}
}

func TestLoadWorkspaceConfigMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	o, err := LoadWorkspaceConfig(Defaults(), dir)
	if err != nil {
		t.Fatalf("unexpected error for missing config.toml: %v", err)
	}
	if o != Defaults() {
		t.Fatalf("expected unchanged defaults, got %+v", o)
	}
}

func TestLoadWorkspaceConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	content := "start_addr = \"0x500000\"\nverbosity = 2\npass_signals = true\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600); err != nil {
		t.Fatalf("writing config.toml: %v", err)
	}

	o, err := LoadWorkspaceConfig(Defaults(), dir)
	if err != nil {
		t.Fatalf("LoadWorkspaceConfig: %v", err)
	}
	if o.StartAddr != 0x500000 {
		t.Errorf("StartAddr = %#x, want 0x500000", o.StartAddr)
	}
	if o.Verbosity != 2 {
		t.Errorf("Verbosity = %d, want 2", o.Verbosity)
	}
	if !o.PassSignals {
		t.Errorf("expected PassSignals overridden to true")
	}
}
