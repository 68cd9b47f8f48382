// Package display is rappel's register/memory display (C6): a pure
// function of (current, previous) snapshots, rendering the canonical
// register table, signal info, and (when requested) FP/SIMD state.
package display

import (
	"bytes"
	"fmt"

	"github.com/docker/go-units"
	"github.com/talismancer/rappel/internal/arch"
)

// Snapshot renders a full register table for current, highlighting every
// register whose value differs from previous (previous may be nil, e.g.
// immediately after spawn). FP/SIMD rows are included only when allRegs
// is set.
func Snapshot(current, previous *arch.Snapshot, allRegs bool) string {
	var buf bytes.Buffer

	for _, name := range arch.GPROrder {
		v, ok := current.GPR(name)
		if !ok {
			continue
		}
		changed := false
		if previous != nil {
			if pv, ok := previous.GPR(name); ok {
				changed = pv != v
			}
		}
		marker := "  "
		if changed {
			marker = "* "
		}
		fmt.Fprintf(&buf, "%s%-8s 0x%016x\n", marker, name, v)
	}

	if current.Signal.HasSignal {
		fmt.Fprintf(&buf, "\nsignal: %d (code %d) at 0x%016x\n",
			current.Signal.Signo, current.Signal.Code, current.Signal.Addr)
	}

	if allRegs && len(current.FP) > 0 {
		buf.WriteString("\nFP/SIMD:\n")
		for _, reg := range current.FP {
			fmt.Fprintf(&buf, "  %-6s %x\n", reg.Name, reg.Value)
		}
	}

	return buf.String()
}

// MemoryDump hex-dumps data starting at addr, sixteen bytes per line, with
// a trailing human-readable size summary.
func MemoryDump(addr uint64, data []byte) string {
	var buf bytes.Buffer
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&buf, "0x%016x  % x\n", addr+uint64(off), data[off:end])
	}
	fmt.Fprintf(&buf, "(%s)\n", units.HumanSize(float64(len(data))))
	return buf.String()
}
