package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitEvent(t *testing.T, w *Watcher, want Event) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev == want {
				return
			}
		case <-timeout:
			t.Fatalf("no %v event for %s", want.Op, want.Path)
		}
	}
}

func TestWatcherReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "voice.wav")
	other := filepath.Join(dir, "other.wav")
	for _, p := range []string{src, other} {
		if err := os.WriteFile(p, []byte("data"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Add(src); err != nil {
		t.Fatal(err)
	}

	// unrelated files in the same directory are ignored
	if err := os.Remove(other); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, w, Event{Path: src, Op: Removed})
}

func TestWatcherReportsRenameOver(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "face.mp4")
	if err := os.WriteFile(src, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Add(src); err != nil {
		t.Fatal(err)
	}

	moved := filepath.Join(dir, "face-old.mp4")
	if err := os.Rename(src, moved); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, w, Event{Path: src, Op: Removed})
}

func TestWatcherRemoveStopsEvents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Add(src); err != nil {
		t.Fatal(err)
	}
	w.Remove(src)

	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-w.Events():
		t.Fatalf("event after Remove: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
