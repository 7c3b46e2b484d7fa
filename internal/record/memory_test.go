package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"pdm-go/internal/pdm"
)

var lockTestTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	remote := NewRemote()
	store := remote.NewReplica()

	locks, err := pdm.LockSet{}.Acquire("a.step", "alice", "work", lockTestTime)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	cs := pdm.NewChangeset()
	cs.SetRecord(pdm.RecordLocks, locks)
	cs.SetFile("a.step", []byte("pointer"))
	if err := store.Save(ctx, pdm.Attribution{User: "alice", Summary: "checked out"}, cs); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	replica := remote.NewReplica()
	got := pdm.LockSet{}
	if err := replica.Load(ctx, map[string]any{pdm.RecordLocks: &got}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	lock, ok := got.Get("a.step")
	if !ok {
		t.Fatal("lock not visible on fresh replica")
	}
	if lock.LockedBy != "alice" {
		t.Errorf("LockedBy = %q, want alice", lock.LockedBy)
	}

	data, err := replica.ReadFile(ctx, pdm.FilesDir+"/a.step")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "pointer" {
		t.Errorf("ReadFile() = %q, want pointer", data)
	}
}

func TestMemoryStore_StaleSaveConflicts(t *testing.T) {
	ctx := context.Background()
	remote := NewRemote()
	s1 := remote.NewReplica()
	s2 := remote.NewReplica()

	if err := s1.Load(ctx, map[string]any{}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s2.Load(ctx, map[string]any{}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cs := pdm.NewChangeset()
	cs.SetRecord(pdm.RecordLocks, pdm.LockSet{})
	if err := s1.Save(ctx, pdm.Attribution{User: "alice", Summary: "first"}, cs); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}

	err := s2.Save(ctx, pdm.Attribution{User: "bob", Summary: "second"}, cs)
	if !errors.Is(err, pdm.ErrConflict) {
		t.Fatalf("stale Save() error = %v, want ErrConflict", err)
	}

	// A reload rebases the replica; the save then lands.
	if err := s2.Load(ctx, map[string]any{}); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if err := s2.Save(ctx, pdm.Attribution{User: "bob", Summary: "second"}, cs); err != nil {
		t.Errorf("Save() after reload error = %v", err)
	}
}

func TestMemoryStore_SyncErr(t *testing.T) {
	store := NewRemote().NewReplica()
	store.SyncErr = errors.New("network down")

	err := store.Load(context.Background(), map[string]any{})
	if !errors.Is(err, pdm.ErrSync) {
		t.Errorf("Load() error = %v, want ErrSync", err)
	}
}

func TestMemoryStore_History(t *testing.T) {
	ctx := context.Background()
	store := NewRemote().NewReplica()
	if err := store.Load(ctx, map[string]any{}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cs := pdm.NewChangeset()
	cs.SetFile("a.step", []byte("pa"))
	if err := store.Save(ctx, pdm.Attribution{User: "alice", Summary: "added a.step"}, cs); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	cs = pdm.NewChangeset()
	cs.SetFile("b.step", []byte("pb"))
	if err := store.Save(ctx, pdm.Attribution{User: "bob", Summary: "added b.step"}, cs); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	all, err := store.History(ctx, "", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all[0].Message != "bob: added b.step" {
		t.Errorf("newest = %q, want newest first", all[0].Message)
	}

	filtered, err := store.History(ctx, pdm.FilesDir+"/a.step", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(filtered) != 1 || filtered[0].Author != "alice" {
		t.Errorf("filtered = %+v, want one commit by alice", filtered)
	}

	limited, err := store.History(ctx, "", 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}
}

func TestMemoryStore_ReadFileNotFound(t *testing.T) {
	store := NewRemote().NewReplica()
	if err := store.Load(context.Background(), map[string]any{}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	_, err := store.ReadFile(context.Background(), pdm.FilesDir+"/ghost.step")
	if !errors.Is(err, pdm.ErrNotFound) {
		t.Errorf("ReadFile() error = %v, want ErrNotFound", err)
	}
}
