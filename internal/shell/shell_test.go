package shell

import "testing"

func TestParseHexAddr(t *testing.T) {
	cases := map[string]uint64{
		"0x400000": 0x400000,
		"400000":   0x400000,
		"0X1234":   0x1234,
	}
	for in, want := range cases {
		got, err := parseHexAddr(in)
		if err != nil {
			t.Fatalf("parseHexAddr(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parseHexAddr(%q) = %#x, want %#x", in, got, want)
		}
	}
}

func TestParseHexAddrRejectsGarbage(t *testing.T) {
	if _, err := parseHexAddr("not-hex"); err == nil {
		t.Fatalf("expected error for non-hex address")
	}
}
