// Package engine is rappel's execution engine (C5): it orchestrates the
// ELF synthesizer, tracee factory, and tracer into the shot protocol:
// write code, reset IP, continue, wait for trap, snapshot. It receives
// already-assembled (or raw) bytes; the shell runs the assembler bridge.
//
// The engine takes an immutable *options.Options at construction; the
// all-regs display toggle is a separate, engine-owned mutable field
// rather than part of Options, so toggling it mid-session never mutates
// the startup configuration record.
package engine

import (
	"errors"

	"github.com/mohae/deepcopy"
	"github.com/talismancer/rappel/internal/arch"
	"github.com/talismancer/rappel/internal/elfimage"
	"github.com/talismancer/rappel/internal/options"
	"github.com/talismancer/rappel/internal/tracee"
	"github.com/talismancer/rappel/internal/tracer"
)

// State is the engine's per-session state machine value.
type State int

const (
	StateInit State = iota
	StateReady
	StateRunning
	StateDead
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ErrDead is returned by Shot when the tracee has already died and the
// session requires .reset before another shot can be taken.
var ErrDead = errors.New("tracee is dead; use .reset")

// ErrOverflow is returned by Shot when the assembled code shot would not
// fit in the tracee's single code page.
var ErrOverflow = errors.New("assembled shot exceeds one code page")

// trapLen is the length, in bytes, of this architecture's trap sentinel.
const trapLen = 1

// ShotResult carries the outcome of a single shot for the display layer.
type ShotResult struct {
	// Current is the snapshot taken after this shot completed.
	Current *arch.Snapshot
	// Previous is a deep copy of the snapshot as it stood immediately
	// before this shot ran, for delta rendering.
	Previous *arch.Snapshot
	// Exited reports whether the tracee's process exited (as opposed to
	// merely faulting) during this shot.
	Exited bool
}

// Engine drives one session's tracee across its lifetime.
type Engine struct {
	opts *options.Options

	// AllRegs toggles FP/SIMD capture and display. Engine-owned and
	// mutable, independent of Options.
	AllRegs bool

	state     State
	tr        *tracee.Handle
	snapshot  *arch.Snapshot
	logicalPC uint64
}

// New builds a fresh tracee and attaches to it, entering the Ready state.
func New(opts *options.Options) (*Engine, error) {
	e := &Engine{opts: opts, AllRegs: opts.AllRegsAtStartup}
	if err := e.spawn(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) spawn() error {
	img := elfimage.Build(e.opts.StartAddr)
	h, err := tracee.Spawn(img, e.opts.SavePath)
	if err != nil {
		return err
	}
	snap, err := tracer.Attach(h.Pid)
	if err != nil {
		return err
	}
	e.tr = h
	e.snapshot = snap
	e.state = StateReady
	e.logicalPC = e.opts.StartAddr
	return nil
}

// Shot runs the eight-step shot protocol against code, the already
// assembled (or raw) bytes for this submission. firstInstrLen is the
// length of the first assembled instruction, used to advance the
// "logical PC" the shell displays — see CurrentAddress.
//
// A multi-instruction shot still advances the logical PC by only the
// first instruction's length, even though every instruction in the shot
// executes: the prompt tracks a user's ongoing program independent of
// the physical resume address, which is always start_addr. This is
// deliberately literal, not "fixed" to sum every instruction's length.
func (e *Engine) Shot(code []byte, firstInstrLen int) (ShotResult, error) {
	if e.state == StateDead {
		return ShotResult{}, ErrDead
	}
	if len(code) == 0 {
		return ShotResult{}, nil
	}

	shotLen := arch.RoundUp(len(code) + trapLen)
	if shotLen > arch.PageSize {
		return ShotResult{}, ErrOverflow
	}

	codeShot := make([]byte, shotLen)
	copy(codeShot, code)
	for i := len(code); i < shotLen; i++ {
		codeShot[i] = arch.TrapByte
	}

	e.state = StateRunning

	if err := tracer.Write(e.tr.Pid, e.opts.StartAddr, codeShot); err != nil {
		return ShotResult{}, err
	}
	if err := tracer.ResetIP(e.tr.Pid, e.snapshot, e.opts.StartAddr); err != nil {
		return ShotResult{}, err
	}
	if err := tracer.Continue(e.tr.Pid, e.snapshot, e.opts.PassSignals); err != nil {
		return ShotResult{}, err
	}

	prev, _ := deepcopy.Copy(e.snapshot).(*arch.Snapshot)

	reaped, err := tracer.Reap(e.tr.Pid, e.snapshot, e.AllRegs)
	if err != nil {
		return ShotResult{}, err
	}
	if reaped.Exited {
		e.state = StateDead
		return ShotResult{Current: e.snapshot, Previous: prev, Exited: true}, nil
	}

	// A fault (any non-trap stop signal) leaves the tracee technically
	// stopped-but-pending-a-fatal-signal. Without pass-signals there is no
	// useful way to resume it, so the session is marked Dead and requires
	// .reset. With pass-signals the recorded signal is instead redelivered
	// on the next continue, so the session stays Ready.
	if e.snapshot.Signal.HasSignal && !e.opts.PassSignals {
		e.state = StateDead
	} else {
		e.state = StateReady
	}

	e.logicalPC += uint64(firstInstrLen)

	return ShotResult{Current: e.snapshot, Previous: prev}, nil
}

// Reset destroys the current tracee (if any) and spawns a fresh one,
// restoring the engine to the exact state observable immediately after
// the initial spawn.
func (e *Engine) Reset() error {
	if e.tr != nil {
		_ = tracer.Detach(e.tr.Pid)
		e.tr.Release()
	}
	return e.spawn()
}

// Close detaches from the tracee unless the engine is Dead, then releases
// its process handle. Safe to call on an already-dead tracee; a tracee
// left stopped by a fault that marked the engine Dead is not detached.
func (e *Engine) Close() error {
	if e.tr == nil {
		return nil
	}
	var err error
	if e.state != StateDead {
		err = tracer.Detach(e.tr.Pid)
	}
	e.tr.Release()
	return err
}

// State reports the engine's current state.
func (e *Engine) State() State { return e.state }

// Dead reports whether the engine requires .reset before another shot.
func (e *Engine) Dead() bool { return e.state == StateDead }

// Pid returns the tracee's process id.
func (e *Engine) Pid() int {
	if e.tr == nil {
		return 0
	}
	return e.tr.Pid
}

// LastSnapshot returns the most recently captured snapshot.
func (e *Engine) LastSnapshot() *arch.Snapshot { return e.snapshot }

// CurrentAddress returns the shell's "current address": the logical PC,
// a running sum of first-instruction lengths, distinct from the tracee's
// physical instruction pointer (which always rests at start_addr or one
// of its page's trap bytes).
func (e *Engine) CurrentAddress() uint64 { return e.logicalPC }

// StartAddr returns the fixed virtual address every shot begins at.
func (e *Engine) StartAddr() uint64 { return e.opts.StartAddr }

// Read peeks length bytes of tracee memory at addr.
func (e *Engine) Read(addr uint64, length int) ([]byte, error) {
	return tracer.Read(e.tr.Pid, addr, length)
}

// Write pokes data into tracee memory at addr. This is the
// out-of-shot-protocol write path used by the shell's .write command;
// unlike a shot it does not reset IP, advance the logical PC, or reap.
func (e *Engine) Write(addr uint64, data []byte) error {
	return tracer.Write(e.tr.Pid, addr, data)
}
