package asm

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// regIndex maps the 64-bit general-purpose register names this bridge
// accepts to their x86-64 encoding index (0-15).
var regIndex = map[string]byte{
	"rax": 0, "rcx": 1, "rdx": 2, "rbx": 3,
	"rsp": 4, "rbp": 5, "rsi": 6, "rdi": 7,
	"r8": 8, "r9": 9, "r10": 10, "r11": 11,
	"r12": 12, "r13": 13, "r14": 14, "r15": 15,
}

// condCode maps the jcc mnemonics this bridge accepts to their opcode
// tail byte (0x70 | cc).
var condCode = map[string]byte{
	"jo": 0x0, "jno": 0x1, "jb": 0x2, "jae": 0x3,
	"je": 0x4, "jz": 0x4, "jne": 0x5, "jnz": 0x5,
	"jbe": 0x6, "ja": 0x7, "js": 0x8, "jns": 0x9,
	"jp": 0xA, "jnp": 0xB, "jl": 0xC, "jge": 0xD,
	"jle": 0xE, "jg": 0xF,
}

// aluOpcode maps two-register ALU mnemonics to their r/m<-reg opcode.
var aluOpcode = map[string]byte{
	"add": 0x01, "or": 0x09, "and": 0x21, "sub": 0x29,
	"xor": 0x31, "cmp": 0x39, "mov": 0x89,
}

// aluImmDigit maps ALU-with-immediate mnemonics to their /digit extension
// used with opcode 0x81.
var aluImmDigit = map[string]byte{
	"add": 0, "or": 1, "and": 4, "sub": 5, "xor": 6, "cmp": 7,
}

func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

func parseReg(op string) (byte, bool) {
	idx, ok := regIndex[strings.ToLower(strings.TrimSpace(op))]
	return idx, ok
}

// parseImm accepts decimal or 0x-prefixed hex, signed or unsigned, fitting
// in an int64; the caller truncates to the instruction's immediate width.
func parseImm(op string) (int64, bool) {
	op = strings.TrimSpace(op)
	v, err := strconv.ParseInt(op, 0, 64)
	if err == nil {
		return v, true
	}
	u, err := strconv.ParseUint(op, 0, 64)
	if err != nil {
		return 0, false
	}
	return int64(u), true
}

// encodeInstruction encodes one statement's instruction into bytes. It
// returns (nil, false, message) when the mnemonic/operands are not
// recognized by this bridge's supported subset.
func encodeInstruction(s statement, labelOf func(string) (int, bool), selfOffset int) ([]byte, bool, string) {
	mnem := s.mnem
	ops := s.ops

	switch mnem {
	case "nop":
		return []byte{0x90}, true, ""
	case "ud2":
		return []byte{0x0F, 0x0B}, true, ""
	case "hlt":
		return []byte{0xF4}, true, ""
	case "int3":
		return []byte{0xCC}, true, ""
	case "syscall":
		return []byte{0x0F, 0x05}, true, ""
	case "ret":
		return []byte{0xC3}, true, ""
	case "cdq":
		return []byte{0x99}, true, ""
	case "cqo":
		return []byte{rex(true, false, false, false), 0x99}, true, ""
	}

	if opcode, ok := aluOpcode[mnem]; ok {
		if len(ops) != 2 {
			return nil, false, mnem + " requires two operands"
		}
		dst, dstOK := parseReg(ops[0])
		if srcReg, ok := parseReg(ops[1]); ok && dstOK {
			b := []byte{
				rex(true, srcReg >= 8, false, dst >= 8),
				opcode,
				modrm(3, srcReg, dst),
			}
			return b, true, ""
		}
		if imm, ok := parseImm(ops[1]); ok && dstOK {
			if mnem == "mov" {
				buf := make([]byte, 4)
				binary.LittleEndian.PutUint32(buf, uint32(int32(imm)))
				b := []byte{rex(true, false, false, dst >= 8), 0xC7, modrm(3, 0, dst)}
				b = append(b, buf...)
				return b, true, ""
			}
			digit, ok := aluImmDigit[mnem]
			if !ok {
				return nil, false, mnem + " does not support an immediate operand"
			}
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(int32(imm)))
			b := []byte{rex(true, false, false, dst >= 8), 0x81, modrm(3, digit, dst)}
			b = append(b, buf...)
			return b, true, ""
		}
		return nil, false, "unrecognized operands for " + mnem
	}

	switch mnem {
	case "inc", "dec", "neg", "not":
		if len(ops) != 1 {
			return nil, false, mnem + " requires one operand"
		}
		reg, ok := parseReg(ops[0])
		if !ok {
			return nil, false, mnem + ": unknown register " + ops[0]
		}
		// inc/dec are FF /0 and FF /1; not/neg are F7 /2 and F7 /3.
		opcode := byte(0xFF)
		var digit byte
		switch mnem {
		case "inc":
			digit = 0
		case "dec":
			digit = 1
		case "not":
			opcode, digit = 0xF7, 2
		case "neg":
			opcode, digit = 0xF7, 3
		}
		return []byte{rex(true, false, false, reg >= 8), opcode, modrm(3, digit, reg)}, true, ""

	case "push":
		if len(ops) != 1 {
			return nil, false, "push requires one operand"
		}
		reg, ok := parseReg(ops[0])
		if !ok {
			return nil, false, "push: unknown register " + ops[0]
		}
		if reg >= 8 {
			return []byte{rex(false, false, false, true), 0x50 + (reg & 7)}, true, ""
		}
		return []byte{0x50 + reg}, true, ""

	case "pop":
		if len(ops) != 1 {
			return nil, false, "pop requires one operand"
		}
		reg, ok := parseReg(ops[0])
		if !ok {
			return nil, false, "pop: unknown register " + ops[0]
		}
		if reg >= 8 {
			return []byte{rex(false, false, false, true), 0x58 + (reg & 7)}, true, ""
		}
		return []byte{0x58 + reg}, true, ""

	case "jmp":
		if len(ops) != 1 {
			return nil, false, "jmp requires a target label"
		}
		target, ok := labelOf(ops[0])
		if !ok {
			return nil, false, "jmp: undefined label " + ops[0]
		}
		rel := int8(target - (selfOffset + 2))
		return []byte{0xEB, byte(rel)}, true, ""
	}

	if tail, ok := condCode[mnem]; ok {
		if len(ops) != 1 {
			return nil, false, mnem + " requires a target label"
		}
		target, ok := labelOf(ops[0])
		if !ok {
			return nil, false, mnem + ": undefined label " + ops[0]
		}
		rel := int8(target - (selfOffset + 2))
		return []byte{0x70 + tail, byte(rel)}, true, ""
	}

	return nil, false, "unsupported mnemonic " + mnem
}

// instructionLen mirrors encodeInstruction's size decision without needing
// resolved label offsets, used during the collection pass.
func instructionLen(s statement) (int, bool, string) {
	// A label target's exact offset isn't known yet, but every branch form
	// this bridge supports is a fixed two bytes (opcode + rel8), so length
	// computation never depends on the label value itself.
	b, ok, msg := encodeInstruction(s, func(string) (int, bool) { return 0, true }, 0)
	if !ok {
		return 0, false, msg
	}
	return len(b), true, ""
}
