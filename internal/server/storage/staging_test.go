package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestStagingStore_WriteFragment(t *testing.T) {
	t.Run("writes fragment to session dir", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStagingStore(dir)

		if err := store.CreateSession("sess1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		n, err := store.WriteFragment("sess1", 3, bytes.NewReader([]byte("chunk data")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 10 {
			t.Errorf("expected 10 bytes written, got %d", n)
		}

		content, err := os.ReadFile(filepath.Join(dir, "sess1", "chunk_3"))
		if err != nil {
			t.Fatalf("failed to read fragment: %v", err)
		}
		if string(content) != "chunk data" {
			t.Errorf("expected 'chunk data', got %q", content)
		}
	})

	t.Run("fails without session dir", func(t *testing.T) {
		store := NewStagingStore(t.TempDir())

		_, err := store.WriteFragment("missing", 0, bytes.NewReader([]byte("x")))
		if err == nil {
			t.Error("expected error for missing session dir")
		}
	})
}

func TestStagingStore_OpenFragment(t *testing.T) {
	t.Run("round-trips fragment bytes", func(t *testing.T) {
		store := NewStagingStore(t.TempDir())
		store.CreateSession("sess1")
		store.WriteFragment("sess1", 0, bytes.NewReader([]byte("AAAA")))

		r, err := store.OpenFragment("sess1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer r.Close()

		data, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("failed to read fragment: %v", err)
		}
		if string(data) != "AAAA" {
			t.Errorf("expected 'AAAA', got %q", data)
		}
	})

	t.Run("returns error for missing fragment", func(t *testing.T) {
		store := NewStagingStore(t.TempDir())
		store.CreateSession("sess1")

		if _, err := store.OpenFragment("sess1", 7); err == nil {
			t.Error("expected error for missing fragment")
		}
	})
}

func TestStagingStore_FragmentSize(t *testing.T) {
	store := NewStagingStore(t.TempDir())
	store.CreateSession("sess1")
	store.WriteFragment("sess1", 2, bytes.NewReader([]byte("12345")))

	size, err := store.FragmentSize("sess1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 5 {
		t.Errorf("expected size 5, got %d", size)
	}
}

func TestStagingStore_RemoveSession(t *testing.T) {
	t.Run("removes dir and all fragments", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStagingStore(dir)
		store.CreateSession("sess1")
		store.WriteFragment("sess1", 0, bytes.NewReader([]byte("a")))
		store.WriteFragment("sess1", 1, bytes.NewReader([]byte("b")))

		if err := store.RemoveSession("sess1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := os.Stat(filepath.Join(dir, "sess1")); !os.IsNotExist(err) {
			t.Error("expected session dir to be removed")
		}
	})

	t.Run("no error for missing session", func(t *testing.T) {
		store := NewStagingStore(t.TempDir())
		if err := store.RemoveSession("nope"); err != nil {
			t.Errorf("expected no error for missing session, got: %v", err)
		}
	})
}

func TestStagingStore_EnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "staging")
	store := NewStagingStore(dir)

	if err := store.EnsureDir(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
}
