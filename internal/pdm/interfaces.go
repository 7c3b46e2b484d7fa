package pdm

import (
	"context"
	"io"
	"time"
)

// Attribution names the actor behind a save and summarizes what they did.
// It becomes the commit author and message, so every state transition is a
// permanent, attributable history entry.
type Attribution struct {
	User    string
	Summary string
}

// CommitInfo is one entry of the store's history, the system's audit log.
type CommitInfo struct {
	Hash    string
	Author  string
	Message string
	When    time.Time
}

// Changeset collects everything one operation wants persisted. The store
// writes the whole set as a single commit: either all of it lands or none
// of it does.
type Changeset struct {
	// Records maps record keys to the documents to serialize.
	Records map[string]any
	// Files maps managed filenames to their new raw content (blob pointers).
	Files map[string][]byte
	// Removals lists managed filenames to delete.
	Removals []string
}

// NewChangeset returns an empty changeset.
func NewChangeset() Changeset {
	return Changeset{Records: make(map[string]any), Files: make(map[string][]byte)}
}

// SetRecord schedules the document for key to be written.
func (c *Changeset) SetRecord(key string, doc any) { c.Records[key] = doc }

// SetFile schedules new content for a managed file.
func (c *Changeset) SetFile(name string, data []byte) { c.Files[name] = data }

// RemoveFile schedules a managed file for deletion.
func (c *Changeset) RemoveFile(name string) { c.Removals = append(c.Removals, name) }

// Empty reports whether the changeset would change nothing. Operations that
// turn out to be no-ops skip the save entirely.
func (c *Changeset) Empty() bool {
	return len(c.Records) == 0 && len(c.Files) == 0 && len(c.Removals) == 0
}

// RecordStore persists the shared record documents and managed-file entries
// in a remote-synchronized repository. Implementations provide optimistic
// concurrency: a Save based on stale state must be rejected, never merged.
type RecordStore interface {
	// Load synchronizes with the remote, then decodes the document stored
	// under each key of records into the corresponding pointer value. Keys
	// with no backing file are left untouched so zero values serve as
	// first-use defaults. Failure to synchronize is ErrSync; unrecoverable
	// local damage is ErrRepositoryCorrupt.
	Load(ctx context.Context, records map[string]any) error

	// ReadFile returns the raw bytes of a managed file (relative to the
	// store root), or ErrNotFound. It does not re-synchronize; callers
	// Load first within the same guarded operation.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// Save writes the changeset, commits it as one attributed commit, and
	// publishes it to the remote. If the remote has advanced since the
	// last Load, Save fails with ErrConflict and changes nothing remotely;
	// the caller must re-Load, recompute, and re-Save.
	Save(ctx context.Context, attr Attribution, cs Changeset) error

	// History returns recent commits touching path, newest first.
	// An empty path means the whole store.
	History(ctx context.Context, path string, limit int) ([]CommitInfo, error)
}

// Guard serializes access to the local working copy across processes.
// The underlying repository tooling cannot survive two local actors
// mutating the same working copy at once, so every load→compute→save
// cycle runs under the guard.
type Guard interface {
	// WithLock runs fn while holding the cross-process lock, releasing it
	// on every exit path. If the lock cannot be acquired within the
	// implementation's wait bound, WithLock fails with ErrBusy and fn is
	// never run.
	WithLock(ctx context.Context, fn func() error) error
}

// BlobStore holds the managed files' actual content, keyed by SHA-256
// checksum. The repository itself only ever stores small pointer files, so
// history stays cheap no matter how large the binaries are.
type BlobStore interface {
	// Put stores content under its checksum. Idempotent: storing the same
	// checksum again is safe. size is the number of bytes r will yield.
	Put(ctx context.Context, checksum string, r io.Reader, size int64) error

	// Get retrieves content by checksum and writes it to w.
	Get(ctx context.Context, checksum string, w io.Writer) error

	// Exists reports whether content for checksum is already stored.
	Exists(ctx context.Context, checksum string) (bool, error)

	// ValidateSetup verifies the store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// Encryptor provides optional at-rest encryption of blob content.
// Encryption needs only the public key; decryption requires unlocking the
// private key with a passphrase first.
type Encryptor interface {
	// Setup performs one-time key generation, storing the public key in
	// plaintext and the private key encrypted with passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key with passphrase, returning a
	// DecryptionContext for the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether a key pair exists.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the
// duration of a session. It is never written to disk.
type DecryptionContext interface {
	// Decrypt reads ciphertext from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}

// Logger provides structured logging for the service layer.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so domain logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}
