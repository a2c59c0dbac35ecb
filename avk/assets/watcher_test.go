package assets

import (
	"context"
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func waitForEvent(t *testing.T, w *ShaderWatcher, path string, removed bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Path == path && ev.Removed == removed {
				return
			}
		case <-timeout:
			t.Fatalf("no event for %s (removed=%v)", path, removed)
		}
	}
}

func TestShaderWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewShaderWatcher()
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()
	if err := w.AddRecursive(dir); err != nil {
		t.Fatalf("watch: %v", err)
	}

	path := writeShader(t, dir, "sky.frag.spv", encodeWords(minimalModule, binary.LittleEndian))
	waitForEvent(t, w, path, false)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w, path, true)
}

func TestShaderWatcherClose(t *testing.T) {
	w, err := NewShaderWatcher()
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("events channel still open")
	}
	if err := w.AddRecursive(t.TempDir()); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("add after close err = %v", err)
	}
}

func TestShaderLibraryWatch(t *testing.T) {
	dir := t.TempDir()
	lib := NewShaderLibrary(dir)
	w, err := NewShaderWatcher()
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()
	if err := w.AddRecursive(dir); err != nil {
		t.Fatalf("watch: %v", err)
	}

	reloaded := make(chan *Shader, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lib.Watch(ctx, w, func(s *Shader) { reloaded <- s })
	}()

	writeShader(t, dir, "post.comp.spv", encodeWords(minimalModule, binary.LittleEndian))
	select {
	case s := <-reloaded:
		if s.Name != "post.comp" {
			t.Errorf("reloaded %q", s.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shader was not picked up")
	}
	if _, ok := lib.Get("post.comp"); !ok {
		t.Error("library does not hold the new shader")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("watch returned %v", err)
	}
}
