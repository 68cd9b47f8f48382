package engine

import (
	"testing"

	"github.com/talismancer/rappel/internal/asm"
	"github.com/talismancer/rappel/internal/options"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	opts := options.Defaults()
	eng, err := New(&opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func assemble(t *testing.T, src string) ([]byte, int) {
	t.Helper()
	res, err := asm.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble(%q): %v", src, err)
	}
	if len(res.Bytes) == 0 {
		return nil, 0
	}
	return res.Bytes, res.InstrLens[0]
}

// A bare nop traps one byte past the start address with no register
// delta.
func TestNopAdvancesOneByteWithNoDelta(t *testing.T) {
	eng := newTestEngine(t)
	code, first := assemble(t, "nop")

	res, err := eng.Shot(code, first)
	if err != nil {
		t.Fatalf("Shot: %v", err)
	}
	if res.Current.Regs.Rip != eng.StartAddr()+1 {
		t.Errorf("Rip = %#x, want %#x", res.Current.Regs.Rip, eng.StartAddr()+1)
	}
	if eng.CurrentAddress() != eng.StartAddr()+1 {
		t.Errorf("logical PC = %#x, want %#x", eng.CurrentAddress(), eng.StartAddr()+1)
	}
	for _, name := range []string{"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp"} {
		before, _ := res.Previous.GPR(name)
		after, _ := res.Current.GPR(name)
		if before != after {
			t.Errorf("%s changed: %#x -> %#x", name, before, after)
		}
	}
}

// mov rax,imm followed by mov rbx,rax checks both the immediate load and
// the register-to-register copy, and that the first shot left rax intact.
func TestMovImmediateThenMovRegister(t *testing.T) {
	eng := newTestEngine(t)

	code, first := assemble(t, "mov rax, 0x1234")
	res, err := eng.Shot(code, first)
	if err != nil {
		t.Fatalf("Shot 1: %v", err)
	}
	if res.Current.Regs.Rax != 0x1234 {
		t.Fatalf("Rax = %#x, want 0x1234", res.Current.Regs.Rax)
	}
	if first != 7 {
		t.Errorf("first instr len = %d, want 7", first)
	}

	code2, first2 := assemble(t, "mov rbx, rax")
	res2, err := eng.Shot(code2, first2)
	if err != nil {
		t.Fatalf("Shot 2: %v", err)
	}
	if res2.Current.Regs.Rbx != 0x1234 {
		t.Errorf("Rbx = %#x, want 0x1234", res2.Current.Regs.Rbx)
	}
	if res2.Current.Regs.Rax != 0x1234 {
		t.Errorf("Rax changed unexpectedly: %#x", res2.Current.Regs.Rax)
	}
}

// xor/inc/inc submitted as one shot yields rax == 2.
func TestBlockShotAccumulatesEffects(t *testing.T) {
	eng := newTestEngine(t)
	code, first := assemble(t, "xor rax, rax\ninc rax\ninc rax")

	res, err := eng.Shot(code, first)
	if err != nil {
		t.Fatalf("Shot: %v", err)
	}
	if res.Current.Regs.Rax != 2 {
		t.Errorf("Rax = %d, want 2", res.Current.Regs.Rax)
	}
}

// ud2 delivers SIGILL; the engine refuses further shots until .reset.
func TestUd2FaultsAndRequiresReset(t *testing.T) {
	eng := newTestEngine(t)
	code, first := assemble(t, "ud2")

	res, err := eng.Shot(code, first)
	if err != nil {
		t.Fatalf("Shot: %v", err)
	}
	if !res.Current.Signal.HasSignal {
		t.Fatalf("expected a recorded signal after ud2")
	}
	if !eng.Dead() {
		t.Fatalf("expected engine to be Dead after an unhandled fault")
	}

	nopCode, nopFirst := assemble(t, "nop")
	if _, err := eng.Shot(nopCode, nopFirst); err != ErrDead {
		t.Fatalf("expected ErrDead after crash, got %v", err)
	}

	if err := eng.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if eng.Dead() {
		t.Fatalf("expected engine to be Ready after Reset")
	}
	if eng.CurrentAddress() != eng.StartAddr() {
		t.Fatalf("expected logical PC reset to start address")
	}
}

// A direct write/read round-trips the same bytes.
func TestWriteReadRoundTrip(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.Write(eng.StartAddr(), []byte{0x90}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := eng.Read(eng.StartAddr(), 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(data) != 1 || data[0] != 0x90 {
		t.Fatalf("read back %v, want [0x90]", data)
	}
}

// A shot with zero assembled bytes is a no-op on tracee state.
func TestShotWithEmptyBytesIsNoop(t *testing.T) {
	eng := newTestEngine(t)
	before := eng.CurrentAddress()

	res, err := eng.Shot(nil, 0)
	if err != nil {
		t.Fatalf("Shot: %v", err)
	}
	if res.Current != nil {
		t.Fatalf("expected no snapshot for an empty shot")
	}
	if eng.CurrentAddress() != before {
		t.Fatalf("logical PC advanced on a no-op shot")
	}
}
