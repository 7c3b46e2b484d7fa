package pdm

import (
	"fmt"
	"time"
)

// Record keys name the shared JSON documents managed by the record store.
// Each key is stored as records/<key>.json in the repository.
const (
	RecordLocks         = "locks"
	RecordMetadata      = "metadata"
	RecordRoles         = "roles"
	RecordParts         = "parts"
	RecordSubscriptions = "subscriptions"
	RecordNotifications = "notifications"
)

// FilesDir is the repository directory holding the managed files themselves
// (as blob pointers, see Pointer).
const FilesDir = "files"

// historyPath widens a bare record key to the repository path the stores
// commit it under, so "locks" filters history the same way
// "records/locks.json" does. Anything else passes through unchanged.
func historyPath(path string) string {
	switch path {
	case RecordLocks, RecordMetadata, RecordRoles, RecordParts,
		RecordSubscriptions, RecordNotifications:
		return "records/" + path + ".json"
	}
	return path
}

// FileLock marks a file as checked out. At most one lock exists per file.
type FileLock struct {
	Filename string    `json:"filename"`
	LockedBy string    `json:"locked_by"`
	LockedAt time.Time `json:"locked_at"`
	Message  string    `json:"message"`
}

// FileMetadata carries the descriptive state of a managed file. Revision
// counts completed checkins and only ever grows.
type FileMetadata struct {
	Filename    string    `json:"filename"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	CreatedAt   time.Time `json:"created_at"`
	Revision    int       `json:"revision"`
}

// Part is a product-level grouping of files sharing a part number.
// CurrentRev is the officially designated revision label; it is assigned by
// hand and never derived from filenames.
type Part struct {
	Number      string `json:"number"`
	Description string `json:"description,omitempty"`
	CurrentRev  string `json:"current_rev,omitempty"`
}

// Notification is one entry in a user's inbox. Entries are append-only;
// the only mutation is flipping IsRead.
type Notification struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// MetadataSet maps filenames to their metadata.
type MetadataSet map[string]FileMetadata

func (s MetadataSet) clone() MetadataSet {
	next := make(MetadataSet, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	return next
}

// Add returns a copy of the set with metadata for a new file. Adding a
// filename that is already present fails with ErrExists.
func (s MetadataSet) Add(meta FileMetadata) (MetadataSet, error) {
	if _, ok := s[meta.Filename]; ok {
		return nil, &existsError{what: "file", name: meta.Filename}
	}
	next := s.clone()
	next[meta.Filename] = meta
	return next, nil
}

// Update returns a copy of the set with the file's metadata replaced.
func (s MetadataSet) Update(meta FileMetadata) MetadataSet {
	next := s.clone()
	next[meta.Filename] = meta
	return next
}

// Remove returns a copy of the set without the named file.
func (s MetadataSet) Remove(filename string) MetadataSet {
	next := s.clone()
	delete(next, filename)
	return next
}

// existsError keeps ErrExists failures descriptive without a dedicated
// exported type per record kind.
type existsError struct {
	what string
	name string
}

func (e *existsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.what, e.name)
}

func (e *existsError) Is(target error) bool { return target == ErrExists }
