package display

import (
	"strings"
	"testing"

	"github.com/talismancer/rappel/internal/arch"
)

func TestSnapshotHighlightsDelta(t *testing.T) {
	prev := &arch.Snapshot{}
	prev.Regs.Rax = 0
	cur := &arch.Snapshot{}
	cur.Regs.Rax = 0x1234

	out := Snapshot(cur, prev, false)
	if !strings.Contains(out, "* rax") {
		t.Fatalf("expected changed rax to be marked, got:\n%s", out)
	}
	if strings.Contains(out, "FP/SIMD") {
		t.Fatalf("expected no FP section when allRegs is false")
	}
}

func TestSnapshotRendersSignal(t *testing.T) {
	cur := &arch.Snapshot{}
	cur.Signal = arch.SigInfo{HasSignal: true, Signo: 4, Code: 1, Addr: 0x400000}

	out := Snapshot(cur, nil, false)
	if !strings.Contains(out, "signal: 4") {
		t.Fatalf("expected signal line, got:\n%s", out)
	}
}

func TestMemoryDumpIncludesHumanSize(t *testing.T) {
	out := MemoryDump(0x400000, []byte{0x90, 0x90})
	if !strings.Contains(out, "0x0000000000400000") {
		t.Fatalf("expected address column, got:\n%s", out)
	}
	if !strings.Contains(out, "B)") {
		t.Fatalf("expected human-readable size suffix, got:\n%s", out)
	}
}
