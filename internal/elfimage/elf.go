// Package elfimage is rappel's ELF synthesizer (C2): it builds the minimal
// loadable executable image: one PT_LOAD
// segment, R+X, pre-filled with trap bytes, entry point at its base.
//
// The header is written byte-by-byte in the style of the pack's
// from-scratch ELF builders, simplified to the single static segment this
// tool needs: no dynamic linker, no sections, no relocations.
package elfimage

import (
	"bytes"
	"encoding/binary"

	"github.com/talismancer/rappel/internal/arch"
)

const (
	elfHeaderSize  = 64
	progHeaderSize = 56

	etExec    = 2
	emX86_64  = 0x3E
	evCurrent = 1

	ptLoad = 1
	pfX    = 1
	pfW    = 2
	pfR    = 4
)

// Build returns an immutable byte buffer: a loadable ELF64 executable whose
// single executable segment, at start, is exactly one page pre-filled with
// arch.TrapByte. Entry point equals start.
//
// The Linux loader requires p_vaddr and p_offset to agree modulo p_align
// (elf_map computes off = p_offset - ELF_PAGEOFFSET(p_vaddr), and
// vm_mmap rejects a non-page-aligned offset). The header and program
// header therefore occupy their own leading page, and the trap-filled
// code segment starts at the next page boundary in the file, so its
// file offset is page-aligned the same way start (p_vaddr) is.
func Build(start uint64) []byte {
	var buf bytes.Buffer

	segOffset := uint64(arch.PageSize)
	fileSize := uint64(arch.PageSize) + arch.PageSize

	// e_ident
	buf.WriteByte(0x7F)
	buf.WriteString("ELF")
	buf.WriteByte(2) // ELFCLASS64
	buf.WriteByte(1) // ELFDATA2LSB
	buf.WriteByte(1) // EV_CURRENT
	buf.WriteByte(0) // ELFOSABI_SYSV
	buf.Write(make([]byte, 8))

	write16 := func(v uint16) { binary.Write(&buf, binary.LittleEndian, v) }
	write32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }
	write64 := func(v uint64) { binary.Write(&buf, binary.LittleEndian, v) }

	write16(etExec)
	write16(emX86_64)
	write32(evCurrent)
	write64(start) // e_entry
	write64(elfHeaderSize)
	write64(0) // e_shoff: no section headers
	write32(0) // e_flags
	write16(elfHeaderSize)
	write16(progHeaderSize)
	write16(1) // e_phnum: one PT_LOAD
	write16(0) // e_shentsize
	write16(0) // e_shnum
	write16(0) // e_shstrndx

	// Program header: PT_LOAD, R+X, vaddr = start, filesz = memsz = PageSize.
	write32(ptLoad)
	write32(pfR | pfX)
	write64(segOffset)
	write64(start)
	write64(start) // p_paddr, unused but conventionally == p_vaddr
	write64(arch.PageSize)
	write64(arch.PageSize)
	write64(arch.PageSize) // p_align

	buf.Write(make([]byte, int(segOffset)-buf.Len()))

	trap := make([]byte, arch.PageSize)
	for i := range trap {
		trap[i] = arch.TrapByte
	}
	buf.Write(trap)

	out := buf.Bytes()
	if uint64(len(out)) != fileSize {
		panic("elfimage: internal length mismatch")
	}
	return out
}
