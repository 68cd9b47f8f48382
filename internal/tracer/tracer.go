// Package tracer is rappel's tracer (C4): the synchronous ptrace
// operations used to attach to, resume, reap, and inspect the tracee.
//
// Every operation blocks the caller until the tracee reaches a stopped
// state. The implementation
// follows the same direct golang.org/x/sys/unix ptrace wrapper calls used
// by the pack's ptrace-based reference tools (pendulm-fileflip,
// DataDog's ptracer), adapted to this tool's single-tracee, single-thread
// model instead of a full syscall-tracing loop.
package tracer

import (
	"strconv"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/talismancer/rappel/internal/arch"
	"golang.org/x/sys/unix"
)

// ptraceGetSigInfo is PTRACE_GETSIGINFO (0x4202 on Linux). golang.org/x/sys/unix
// does not wrap it with a typed helper, so it's issued as a raw ptrace
// syscall, same as the pack's lower-level ptrace reference code does for
// requests without a dedicated wrapper.
const ptraceGetSigInfo = 0x4202

// rawSigInfo mirrors the layout of Linux's siginfo_t for the _sigfault
// member (SIGILL/SIGSEGV/SIGBUS/SIGFPE): a 12-byte common header padded to
// 8-byte alignment, followed by the faulting address.
type rawSigInfo struct {
	Signo int32
	Errno int32
	Code  int32
	_pad  int32
	Addr  uint64
	_rest [104]byte // pad to sizeof(siginfo_t) == 128
}

// Reaped describes the outcome of Reap.
type Reaped struct {
	Exited   bool
	ExitCode int
}

// Attach waits for the tracee's initial exec-stop, arms trace options that
// turn future exec/clone into deterministic stops, and produces the first
// snapshot.
func Attach(pid int) (*arch.Snapshot, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, 0, nil)
		if err != nil {
			return nil, errors.Wrap(err, "wait4 for initial stop")
		}
		if wpid != pid {
			continue
		}
		if ws.Stopped() {
			break
		}
		if ws.Exited() || ws.Signaled() {
			return nil, errors.New("tracee failed to start")
		}
	}

	opts := unix.PTRACE_O_TRACEEXEC | unix.PTRACE_O_TRACECLONE |
		unix.PTRACE_O_TRACEFORK | unix.PTRACE_O_TRACEVFORK | unix.PTRACE_O_EXITKILL
	if err := unix.PtraceSetOptions(pid, opts); err != nil {
		return nil, errors.Wrap(err, "ptrace set options")
	}

	snap := &arch.Snapshot{}
	if err := populateRegs(pid, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Continue resumes the tracee. If the previous stop delivered a non-trap
// signal and passSignals is set, that signal is redelivered; otherwise it
// is swallowed.
func Continue(pid int, prev *arch.Snapshot, passSignals bool) error {
	sig := 0
	if passSignals && prev.Signal.HasSignal {
		sig = int(prev.Signal.Signo)
	}
	if err := unix.PtraceCont(pid, sig); err != nil {
		return errors.Wrap(err, "ptrace cont")
	}
	return nil
}

// Reap blocks until the tracee stops or exits, populating snap with GP
// registers, IP, flags, and (if allRegs is set, or the stop was a fault)
// FP state and signal info.
func Reap(pid int, snap *arch.Snapshot, allRegs bool) (Reaped, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, 0, nil)
		if err != nil {
			return Reaped{}, errors.Wrap(err, "wait4")
		}
		if wpid == pid {
			break
		}
	}

	if ws.Exited() {
		return Reaped{Exited: true, ExitCode: ws.ExitStatus()}, nil
	}
	if ws.Signaled() {
		return Reaped{Exited: true, ExitCode: 128 + int(ws.Signal())}, nil
	}

	sig := ws.StopSignal()
	fault := sig != unix.SIGTRAP
	snap.Signal = arch.SigInfo{}
	if fault {
		snap.Signal.HasSignal = true
		snap.Signal.Signo = int32(sig)
		if addr, code, err := getSigInfo(pid); err == nil {
			snap.Signal.Addr = addr
			snap.Signal.Code = code
		}
	}

	if err := populateRegs(pid, snap); err != nil {
		return Reaped{}, err
	}
	if !fault {
		// INT3 is a trap: the kernel reports rip one byte past the trap
		// byte that stopped the tracee. Step back so the snapshot's rip
		// is the address of that trap byte.
		snap.Regs.Rip--
	}
	if allRegs || fault {
		if fp, err := populateFP(pid); err == nil {
			snap.FP = fp
		}
	} else {
		snap.FP = nil
	}

	return Reaped{}, nil
}

// Read peeks len bytes of tracee memory at addr.
func Read(pid int, addr uint64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := unix.PtracePeekData(pid, uintptr(addr), buf)
	if err != nil {
		return nil, errors.Wrapf(err, "ptrace peek at %#x", addr)
	}
	return buf[:n], nil
}

// Write pokes data into tracee memory at addr.
func Write(pid int, addr uint64, data []byte) error {
	n, err := unix.PtracePokeData(pid, uintptr(addr), data)
	if err != nil {
		return errors.Wrapf(err, "ptrace poke at %#x", addr)
	}
	if n != len(data) {
		return errors.Errorf("short poke at %#x: wrote %d of %d bytes", addr, n, len(data))
	}
	return nil
}

// ResetIP sets the instruction pointer to addr without touching any other
// register.
func ResetIP(pid int, snap *arch.Snapshot, addr uint64) error {
	if err := unix.PtraceGetRegs(pid, &snap.Regs); err != nil {
		return errors.Wrap(err, "ptrace getregs")
	}
	snap.SetRegName("rip", addr)
	if err := unix.PtraceSetRegs(pid, &snap.Regs); err != nil {
		return errors.Wrap(err, "ptrace setregs")
	}
	return nil
}

// Detach cleanly releases the tracee. If the tracee has already died this
// is a no-op.
func Detach(pid int) error {
	if err := unix.PtraceDetach(pid); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return errors.Wrap(err, "ptrace detach")
	}
	return nil
}

func populateRegs(pid int, snap *arch.Snapshot) error {
	if err := unix.PtraceGetRegs(pid, &snap.Regs); err != nil {
		return errors.Wrap(err, "ptrace getregs")
	}
	return nil
}

func populateFP(pid int) ([]arch.FPReg, error) {
	var fp unix.PtraceFpRegs
	if err := unix.PtraceGetFpRegs(pid, &fp); err != nil {
		return nil, errors.Wrap(err, "ptrace getfpregs")
	}
	// StSpace holds 8 x87 registers, XmmSpace 16 SSE registers, each packed
	// as 4 little-endian uint32 words (16 bytes) per register.
	regs := make([]arch.FPReg, 0, 8+16)
	for i := 0; i < 8; i++ {
		regs = append(regs, arch.FPReg{Name: stName(i), Value: words32ToBytes(fp.StSpace[i*4 : i*4+4])})
	}
	for i := 0; i < 16; i++ {
		regs = append(regs, arch.FPReg{Name: xmmName(i), Value: words32ToBytes(fp.XmmSpace[i*4 : i*4+4])})
	}
	return regs, nil
}

func words32ToBytes(words []uint32) []byte {
	out := make([]byte, 0, len(words)*4)
	for _, w := range words {
		out = append(out, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	return out
}

func stName(i int) string {
	return "st" + strconv.Itoa(i)
}

func xmmName(i int) string {
	return "xmm" + strconv.Itoa(i)
}

func getSigInfo(pid int) (addr uint64, code int32, err error) {
	var raw rawSigInfo
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(ptraceGetSigInfo), uintptr(pid), 0,
		uintptr(unsafe.Pointer(&raw)), 0, 0)
	if errno != 0 {
		return 0, 0, errno
	}
	return raw.Addr, raw.Code, nil
}
