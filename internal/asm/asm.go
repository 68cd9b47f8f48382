// Package asm is rappel's assembler bridge (C1): it turns UTF-8 x86-64
// assembly source into machine bytes, plus the per-instruction byte length
// the shell uses to advance its logical program counter. It supports a
// fixed subset of x86-64 sufficient for interactive single-shot use; see
// encodeInstruction in encoder_amd64.go for the supported mnemonics.
package asm

import (
	"github.com/hashicorp/go-multierror"
)

// Result is the output of a successful Assemble call; on any error Assemble
// returns a zero Result. Bytes is nil and InstrLens is empty when there was
// nothing to assemble (an empty shot, treated as a no-op).
type Result struct {
	Bytes []byte
	// InstrLens holds the byte length of each instruction in source order.
	// InstrLens[0] is what the shell uses to advance its logical PC
	// (the shell uses it to advance its logical PC); the rest are exposed
	// for completeness and
	// future multi-step display.
	InstrLens []int
}

// Assemble performs a two-pass assembly:
// pass one collects label offsets and instruction sizes, pass two emits
// bytes using those offsets. All errors found in either pass are returned
// together (via go-multierror) rather than stopping at the first one, so
// the caller can show the user everything wrong with their shot at once.
func Assemble(src string) (Result, error) {
	stmts := parseLines(src)
	if len(stmts) == 0 {
		return Result{}, nil
	}

	labels := map[string]int{}
	lens := make([]int, 0, len(stmts))
	var errs error

	offset := 0
	for _, s := range stmts {
		if s.label != "" {
			labels[s.label] = offset
			continue
		}
		n, ok, msg := instructionLen(s)
		if !ok {
			errs = multierror.Append(errs, CodegenError{Line: s.line, Message: msg})
			continue
		}
		lens = append(lens, n)
		offset += n
	}
	if errs != nil {
		return Result{}, errs
	}

	labelOf := func(name string) (int, bool) {
		v, ok := labels[name]
		return v, ok
	}

	out := make([]byte, 0, offset)
	idx := 0
	for _, s := range stmts {
		if s.label != "" {
			continue
		}
		b, ok, msg := encodeInstruction(s, labelOf, len(out))
		if !ok {
			errs = multierror.Append(errs, CodegenError{Line: s.line, Message: msg})
			continue
		}
		out = append(out, b...)
		idx++
	}
	if errs != nil {
		return Result{}, errs
	}

	return Result{Bytes: out, InstrLens: lens}, nil
}
