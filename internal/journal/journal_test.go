package journal

import (
	"path/filepath"
	"testing"
	"time"
)

func entry(id, op, status string, startedAt time.Time) Entry {
	return Entry{
		ID:         id,
		Operation:  op,
		Actor:      "alice",
		Target:     "a.step",
		Status:     status,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(time.Second),
	}
}

func TestJournal_RecordList(t *testing.T) {
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if err := j.Record(entry("op-1", "Checkout", "success", base)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	e2 := entry("op-2", "Checkin", "error", base.Add(time.Minute))
	e2.ErrorKind = "not_owner"
	if err := j.Record(e2); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := j.List(10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].ID != "op-2" {
		t.Errorf("entries[0].ID = %q, want op-2 (newest first)", entries[0].ID)
	}
	if entries[0].ErrorKind != "not_owner" {
		t.Errorf("ErrorKind = %q, want not_owner", entries[0].ErrorKind)
	}
	if entries[1].Operation != "Checkout" || entries[1].Status != "success" {
		t.Errorf("entries[1] = %+v, want the successful checkout", entries[1])
	}
}

func TestJournal_ListLimit(t *testing.T) {
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := j.Record(entry("op-"+string(rune('a'+i)), "ListFiles", "success", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := j.List(2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
}

func TestJournal_OpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	if err := j.Record(entry("op-1", "AddFile", "success", time.Now().UTC())); err != nil {
		t.Errorf("Record() error = %v", err)
	}
}

func TestJournal_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	j.Close()
}
