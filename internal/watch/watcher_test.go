package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.md")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	w, err := New(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatalf("no change signal after write")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.md")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	w, err := New(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case <-w.Changes():
		t.Fatalf("signal received for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.md")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	w, err := New(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("burst"), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatalf("no signal after burst")
	}

	// The burst coalesced: no second signal arrives.
	select {
	case <-w.Changes():
		t.Fatalf("burst produced more than one signal")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStartTwiceFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.md")

	w, err := New(path, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err == nil {
		t.Errorf("second Start did not fail")
	}
}
