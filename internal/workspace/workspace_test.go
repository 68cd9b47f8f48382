package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDirAndLocks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("workspace dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %s to be a directory", dir)
	}
	if !w.lock.Locked() {
		t.Fatalf("expected the session lock to be held after Open")
	}
}

func TestSecondOpenIsRejected(t *testing.T) {
	dir := t.TempDir()
	w1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer w1.Close()

	if _, err := Open(dir); err == nil {
		t.Fatalf("expected second Open of a locked workspace to fail")
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	w.Record("mov rax, 0x1234")
	w.Record("nop")
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, historyName))
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	want := "mov rax, 0x1234\nnop\n"
	if string(data) != want {
		t.Fatalf("history = %q, want %q", data, want)
	}
}

func TestClearHistory(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	w.Record("nop")
	w.ClearHistory()
	if len(w.History()) != 0 {
		t.Fatalf("expected history cleared, got %v", w.History())
	}
}
