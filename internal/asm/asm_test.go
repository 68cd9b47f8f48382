package asm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAssembleScenarios(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []byte
		lens []int
	}{
		{
			name: "nop",
			src:  "nop",
			want: []byte{0x90},
			lens: []int{1},
		},
		{
			name: "mov rax imm",
			src:  "mov rax, 0x1234",
			want: []byte{0x48, 0xC7, 0xC0, 0x34, 0x12, 0x00, 0x00},
			lens: []int{7},
		},
		{
			name: "mov rbx rax",
			src:  "mov rbx, rax",
			want: []byte{0x48, 0x89, 0xC3},
			lens: []int{3},
		},
		{
			name: "ud2",
			src:  "ud2",
			want: []byte{0x0F, 0x0B},
			lens: []int{2},
		},
		{
			name: "block xor inc inc",
			src:  "xor rax, rax\ninc rax\ninc rax",
			want: []byte{0x48, 0x31, 0xC0, 0x48, 0xFF, 0xC0, 0x48, 0xFF, 0xC0},
			lens: []int{3, 3, 3},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Assemble(tc.src)
			if err != nil {
				t.Fatalf("Assemble(%q) error: %v", tc.src, err)
			}
			if diff := cmp.Diff(tc.want, res.Bytes); diff != "" {
				t.Errorf("bytes mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.lens, res.InstrLens); diff != "" {
				t.Errorf("instr lens mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssembleEmptyIsNoop(t *testing.T) {
	res, err := Assemble("   \n; just a comment\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Bytes) != 0 || len(res.InstrLens) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestAssembleSyntaxErrorLeavesNothing(t *testing.T) {
	res, err := Assemble("bogus_mnemonic rax, rax")
	if err == nil {
		t.Fatalf("expected error for unsupported mnemonic")
	}
	if res.Bytes != nil {
		t.Fatalf("expected no bytes on error, got %v", res.Bytes)
	}
}

func TestAssembleLocalJump(t *testing.T) {
	res, err := Assemble("start:\nnop\njmp start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x90, 0xEB, 0xFD}
	if diff := cmp.Diff(want, res.Bytes); diff != "" {
		t.Errorf("bytes mismatch (-want +got):\n%s", diff)
	}
}
