package blob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdm-go/internal/config"
	"pdm-go/internal/pdm"
)

func configBlob(typ, root string) config.BlobConfig {
	return config.BlobConfig{Type: typ, Name: "test", FSRoot: root}
}

func TestFileSystemStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore("local", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	content := []byte("solid geometry bytes")
	sum := pdm.Checksum(content)

	if err := store.Put(ctx, sum, bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var buf bytes.Buffer
	if err := store.Get(ctx, sum, &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("Get() = %q, want %q", buf.Bytes(), content)
	}

	ok, err := store.Exists(ctx, sum)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Error("Exists() = false after Put")
	}
}

func TestFileSystemStore_PutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileSystemStore("local", root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	content := []byte("bytes")
	sum := pdm.Checksum(content)
	if err := store.Put(ctx, sum, bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	if err := store.Put(ctx, sum, bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "content"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("content dir holds %d entries, want 1", len(entries))
	}
}

func TestFileSystemStore_SizeMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore("local", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	content := []byte("bytes")
	err = store.Put(ctx, pdm.Checksum(content), bytes.NewReader(content), int64(len(content))+7)
	if err == nil {
		t.Fatal("Put() with wrong size expected error")
	}

	// Nothing half-written survives the failed put.
	entries, readErr := os.ReadDir(filepath.Join(store.root, "content"))
	if readErr != nil {
		t.Fatalf("ReadDir() error = %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("content dir holds %d entries after failed put, want 0", len(entries))
	}
}

func TestFileSystemStore_GetMissing(t *testing.T) {
	store, err := NewFileSystemStore("local", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	var buf bytes.Buffer
	err = store.Get(context.Background(), pdm.Checksum([]byte("ghost")), &buf)
	if !errors.Is(err, pdm.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFileSystemStore_ValidateSetup(t *testing.T) {
	store, err := NewFileSystemStore("local", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	if err := store.ValidateSetup(context.Background()); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}

	if err := os.RemoveAll(store.contentDir); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if err := store.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() after removing content dir expected error")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("test")

	content := []byte("bytes")
	sum := pdm.Checksum(content)

	ok, err := store.Exists(ctx, sum)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Error("Exists() = true before Put")
	}

	if err := store.Put(ctx, sum, bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, sum, strings.NewReader("short"), 99); err == nil {
		t.Error("Put() with wrong size expected error")
	}

	var buf bytes.Buffer
	if err := store.Get(ctx, sum, &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("Get() = %q, want %q", buf.Bytes(), content)
	}
	if got := store.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestNewBlobStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("filesystem requires fs_root", func(t *testing.T) {
		if _, err := NewBlobStoreFromConfig(ctx, configBlob("filesystem", "")); err == nil {
			t.Error("expected error for missing fs_root")
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		store, err := NewBlobStoreFromConfig(ctx, configBlob("filesystem", t.TempDir()))
		if err != nil {
			t.Fatalf("NewBlobStoreFromConfig() error = %v", err)
		}
		if _, ok := store.(*FileSystemStore); !ok {
			t.Errorf("type = %T, want *FileSystemStore", store)
		}
	})

	t.Run("memory", func(t *testing.T) {
		store, err := NewBlobStoreFromConfig(ctx, configBlob("memory", ""))
		if err != nil {
			t.Fatalf("NewBlobStoreFromConfig() error = %v", err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Errorf("type = %T, want *MemoryStore", store)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewBlobStoreFromConfig(ctx, configBlob("tape", "")); err == nil {
			t.Error("expected error for unknown type")
		}
	})
}
