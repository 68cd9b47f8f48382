// Package arch holds the x86-64 register and snapshot data model shared by
// the assembler, tracer, engine, and display layers.
package arch

import "golang.org/x/sys/unix"

// TrapByte is the x86 single-byte breakpoint trap (INT3). The tracee's code
// page is always terminated by at least one of these.
const TrapByte byte = 0xCC

// WordSize is the architecture's natural alignment unit for code shots.
const WordSize = 8

// PageSize is the size of the tracee's one and only executable segment.
const PageSize = 4096

// DefaultStartAddr is the virtual address at which the code page is mapped
// absent a -s override.
const DefaultStartAddr uint64 = 0x400000

// GPROrder lists the general-purpose registers in the canonical display
// order used by the register table (C6).
var GPROrder = []string{
	"rip", "eflags",
	"rax", "rbx", "rcx", "rdx",
	"rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"orig_rax",
	"cs", "ss", "ds", "es", "fs", "gs", "fs_base", "gs_base",
}

// SigInfo carries the signal triple recorded on a non-trap stop.
type SigInfo struct {
	Signo     int32
	Code      int32
	Addr      uint64
	HasSignal bool
}

// FPReg is a single named FP/SIMD register value, rendered only when the
// all-regs toggle is on.
type FPReg struct {
	Name  string
	Value []byte
}

// Snapshot is an architecture-specific record of a single stop point: the
// general-purpose registers, flags, segment selectors, optional FP/SIMD
// state, and signal info if the stop was not a plain trap.
type Snapshot struct {
	Regs   unix.PtraceRegs
	FP     []FPReg
	Signal SigInfo
}

// GPR returns the named general-purpose register's value. ok is false for
// an unrecognized name.
func (s *Snapshot) GPR(name string) (uint64, bool) {
	switch name {
	case "rip":
		return s.Regs.Rip, true
	case "eflags":
		return s.Regs.Eflags, true
	case "rax":
		return s.Regs.Rax, true
	case "rbx":
		return s.Regs.Rbx, true
	case "rcx":
		return s.Regs.Rcx, true
	case "rdx":
		return s.Regs.Rdx, true
	case "rsi":
		return s.Regs.Rsi, true
	case "rdi":
		return s.Regs.Rdi, true
	case "rbp":
		return s.Regs.Rbp, true
	case "rsp":
		return s.Regs.Rsp, true
	case "r8":
		return s.Regs.R8, true
	case "r9":
		return s.Regs.R9, true
	case "r10":
		return s.Regs.R10, true
	case "r11":
		return s.Regs.R11, true
	case "r12":
		return s.Regs.R12, true
	case "r13":
		return s.Regs.R13, true
	case "r14":
		return s.Regs.R14, true
	case "r15":
		return s.Regs.R15, true
	case "orig_rax":
		return s.Regs.Orig_rax, true
	case "cs":
		return s.Regs.Cs, true
	case "ss":
		return s.Regs.Ss, true
	case "ds":
		return s.Regs.Ds, true
	case "es":
		return s.Regs.Es, true
	case "fs":
		return s.Regs.Fs, true
	case "gs":
		return s.Regs.Gs, true
	case "fs_base":
		return s.Regs.Fs_base, true
	case "gs_base":
		return s.Regs.Gs_base, true
	}
	return 0, false
}

// SetRegName writes a register by canonical name in place. Only "rip" is
// handled; any other name returns false and leaves s unchanged. Used by
// tracer.ResetIP to set rip without disturbing any other register read
// from the tracee.
func (s *Snapshot) SetRegName(name string, v uint64) bool {
	switch name {
	case "rip":
		s.Regs.Rip = v
	default:
		return false
	}
	return true
}

// RoundUp rounds n up to the next multiple of WordSize.
func RoundUp(n int) int {
	if n%WordSize == 0 {
		return n
	}
	return n + (WordSize - n%WordSize)
}
