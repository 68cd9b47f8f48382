package elfimage

import (
	"testing"

	"github.com/talismancer/rappel/internal/arch"
)

func TestBuildHeader(t *testing.T) {
	img := Build(0x400000)

	if img[0] != 0x7F || string(img[1:4]) != "ELF" {
		t.Fatalf("missing ELF magic: % x", img[:4])
	}
	if img[4] != 2 {
		t.Fatalf("expected ELFCLASS64, got %d", img[4])
	}

	wantSize := 2 * arch.PageSize
	if len(img) != wantSize {
		t.Fatalf("image size = %d, want %d", len(img), wantSize)
	}

	segStart := arch.PageSize
	for i := 0; i < arch.PageSize; i++ {
		if img[segStart+i] != arch.TrapByte {
			t.Fatalf("byte %d of code page = %#x, want trap byte", i, img[segStart+i])
		}
	}

	for i := elfHeaderSize + progHeaderSize; i < segStart; i++ {
		if img[i] != 0 {
			t.Fatalf("byte %d of header padding = %#x, want 0", i, img[i])
		}
	}
}
