package record

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"pdm-go/internal/pdm"
)

// Remote is an in-memory stand-in for the shared remote repository. Several
// MemoryStore replicas can share one Remote, which makes the push-rejection
// race observable in tests without a real repository.
type Remote struct {
	mu      sync.Mutex
	version int64
	records map[string][]byte
	files   map[string][]byte
	commits []commitEntry
}

type commitEntry struct {
	info  pdm.CommitInfo
	paths []string
}

// NewRemote creates an empty in-memory remote.
func NewRemote() *Remote {
	return &Remote{
		records: make(map[string][]byte),
		files:   make(map[string][]byte),
	}
}

// NewReplica returns a store backed by this remote with its own working
// state, as if a separate process had cloned the repository.
func (r *Remote) NewReplica() *MemoryStore {
	return &MemoryStore{
		remote:  r,
		records: make(map[string][]byte),
		files:   make(map[string][]byte),
	}
}

// MemoryStore implements pdm.RecordStore against a shared Remote. A Save
// whose last Load predates the remote's current version fails with
// pdm.ErrConflict, mirroring a rejected push.
type MemoryStore struct {
	remote *Remote

	// SyncErr, when set, makes every Load fail with it. Test hook for the
	// unreachable-remote path.
	SyncErr error

	base    int64
	records map[string][]byte
	files   map[string][]byte
}

var _ pdm.RecordStore = (*MemoryStore)(nil)

// Load snapshots the remote state into the replica and decodes the
// requested records.
func (s *MemoryStore) Load(_ context.Context, records map[string]any) error {
	if s.SyncErr != nil {
		return fmt.Errorf("syncing with remote: %v: %w", s.SyncErr, pdm.ErrSync)
	}
	s.remote.mu.Lock()
	s.base = s.remote.version
	s.records = make(map[string][]byte, len(s.remote.records))
	for k, v := range s.remote.records {
		s.records[k] = v
	}
	s.files = make(map[string][]byte, len(s.remote.files))
	for k, v := range s.remote.files {
		s.files[k] = v
	}
	s.remote.mu.Unlock()

	for key, target := range records {
		data, ok := s.records[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("decoding record %s: %w", key, err)
		}
	}
	return nil
}

// ReadFile reads from the replica's snapshot, as a working copy would.
func (s *MemoryStore) ReadFile(_ context.Context, path string) ([]byte, error) {
	name, ok := strings.CutPrefix(path, pdm.FilesDir+"/")
	if !ok {
		return nil, &pdm.NotFoundError{What: "file", Name: path}
	}
	data, ok := s.files[name]
	if !ok {
		return nil, &pdm.NotFoundError{What: "file", Name: path}
	}
	return data, nil
}

// Save publishes the changeset to the remote as one versioned commit,
// failing with pdm.ErrConflict when another replica published first.
func (s *MemoryStore) Save(_ context.Context, attr pdm.Attribution, cs pdm.Changeset) error {
	encoded := make(map[string][]byte, len(cs.Records))
	for key, doc := range cs.Records {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", key, err)
		}
		encoded[key] = append(data, '\n')
	}

	s.remote.mu.Lock()
	defer s.remote.mu.Unlock()

	if s.base != s.remote.version {
		return fmt.Errorf("pushing %q: %w", attr.Summary, pdm.ErrConflict)
	}

	var paths []string
	for key, data := range encoded {
		s.remote.records[key] = data
		s.records[key] = data
		paths = append(paths, recordsDir+"/"+key+".json")
	}
	for name, data := range cs.Files {
		s.remote.files[name] = data
		s.files[name] = data
		paths = append(paths, pdm.FilesDir+"/"+name)
	}
	for _, name := range cs.Removals {
		delete(s.remote.files, name)
		delete(s.files, name)
		paths = append(paths, pdm.FilesDir+"/"+name)
	}

	s.remote.version++
	s.base = s.remote.version
	s.remote.commits = append(s.remote.commits, commitEntry{
		info: pdm.CommitInfo{
			Hash:    fmt.Sprintf("%012d", s.remote.version),
			Author:  attr.User,
			Message: fmt.Sprintf("%s: %s", attr.User, attr.Summary),
			When:    time.Now(),
		},
		paths: paths,
	})
	return nil
}

// History returns the remote's commits newest first, optionally filtered by
// path prefix.
func (s *MemoryStore) History(_ context.Context, path string, limit int) ([]pdm.CommitInfo, error) {
	s.remote.mu.Lock()
	defer s.remote.mu.Unlock()

	var commits []pdm.CommitInfo
	for i := len(s.remote.commits) - 1; i >= 0; i-- {
		entry := s.remote.commits[i]
		if path != "" && !entry.touches(path) {
			continue
		}
		commits = append(commits, entry.info)
		if limit > 0 && len(commits) >= limit {
			break
		}
	}
	return commits, nil
}

func (e commitEntry) touches(path string) bool {
	for _, p := range e.paths {
		if p == path || strings.HasPrefix(p, path+"/") {
			return true
		}
	}
	return false
}
