package pdm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DefaultConflictRetries bounds how often a mutation is recomputed after its
// save lost a race against another replica. Each retry starts from a fresh
// load, so the recomputation is deterministic; once the bound is exhausted
// the conflict surfaces to the caller.
const DefaultConflictRetries = 3

// Service is the orchestration layer. Every operation runs the same cycle:
// acquire the process guard, load fresh state from the record store, run
// pure domain logic, save the result as one attributed commit. Domain state
// is never mutated in place; a failed save simply recomputes from a fresh
// snapshot.
type Service struct {
	store     RecordStore
	guard     Guard
	blobs     BlobStore
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	scheme    NameScheme
	retries   int
}

// NewService creates a Service with the provided dependencies.
// encryptor may be nil, in which case blob content is stored in plaintext.
// retries <= 0 selects DefaultConflictRetries.
func NewService(store RecordStore, guard Guard, blobs BlobStore, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, scheme NameScheme, retries int) *Service {
	if retries <= 0 {
		retries = DefaultConflictRetries
	}
	return &Service{
		store:     store,
		guard:     guard,
		blobs:     blobs,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		scheme:    scheme,
		retries:   retries,
	}
}

// Scheme returns the filename scheme the service parses part numbers with.
func (s *Service) Scheme() NameScheme { return s.scheme }

// state is one loaded snapshot of the shared records. Fields start at their
// empty values; a record with no backing file simply stays empty.
type state struct {
	locks    LockSet
	metadata MetadataSet
	roles    RoleSet
	parts    PartSet
	subs     SubscriptionSet
	notes    NotificationList
}

// loadState syncs with the remote and decodes the requested record keys.
func (s *Service) loadState(ctx context.Context, keys ...string) (*state, error) {
	st := &state{
		locks:    LockSet{},
		metadata: MetadataSet{},
		roles:    RoleSet{},
		parts:    PartSet{},
		subs:     SubscriptionSet{},
		notes:    NotificationList{},
	}
	targets := make(map[string]any, len(keys))
	for _, key := range keys {
		switch key {
		case RecordLocks:
			targets[key] = &st.locks
		case RecordMetadata:
			targets[key] = &st.metadata
		case RecordRoles:
			targets[key] = &st.roles
		case RecordParts:
			targets[key] = &st.parts
		case RecordSubscriptions:
			targets[key] = &st.subs
		case RecordNotifications:
			targets[key] = &st.notes
		default:
			return nil, fmt.Errorf("unknown record key %q", key)
		}
	}
	if err := s.store.Load(ctx, targets); err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	return st, nil
}

// mutate runs one guarded load→compute→save cycle. compute receives a fresh
// snapshot and returns the changeset plus the commit summary; it must be
// pure so a conflicted save can rerun it against reloaded state. Only
// ErrConflict is retried, everything else surfaces verbatim.
func (s *Service) mutate(ctx context.Context, user string, keys []string, compute func(st *state) (Changeset, string, error)) error {
	return s.guard.WithLock(ctx, func() error {
		var lastErr error
		for attempt := 0; attempt <= s.retries; attempt++ {
			st, err := s.loadState(ctx, keys...)
			if err != nil {
				return err
			}
			cs, summary, err := compute(st)
			if err != nil {
				return err
			}
			if cs.Empty() {
				return nil
			}
			err = s.store.Save(ctx, Attribution{User: user, Summary: summary}, cs)
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrConflict) {
				return fmt.Errorf("saving records: %w", err)
			}
			lastErr = err
			s.logger.Warn("save lost a race against another replica, recomputing",
				"user", user, "attempt", attempt+1)
		}
		return fmt.Errorf("retries exhausted: %w", lastErr)
	})
}

// view runs a guarded read-only load of the requested records.
func (s *Service) view(ctx context.Context, keys ...string) (*state, error) {
	var st *state
	err := s.guard.WithLock(ctx, func() error {
		var err error
		st, err = s.loadState(ctx, keys...)
		return err
	})
	return st, err
}

// validFilename rejects names that would escape the managed files directory.
func validFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is empty")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid filename %q", name)
	}
	return nil
}

// storeContent uploads content to the blob store (encrypting first when an
// encryptor is configured) and returns the pointer to commit. The upload
// happens before the record save: blob puts are idempotent by checksum, so
// the worst outcome of a later save failure is an orphaned blob.
func (s *Service) storeContent(ctx context.Context, content io.Reader) (Pointer, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return Pointer{}, fmt.Errorf("reading content: %w", err)
	}
	p := Pointer{OID: Checksum(data), Size: int64(len(data))}

	stored := data
	if s.encryptor != nil {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(data), &buf); err != nil {
			return Pointer{}, fmt.Errorf("encrypting content: %w", err)
		}
		stored = buf.Bytes()
		p.EncOID = Checksum(stored)
		p.EncSize = int64(len(stored))
	}

	ok, err := s.blobs.Exists(ctx, p.StoredOID())
	if err != nil {
		return Pointer{}, fmt.Errorf("checking blob store: %w", err)
	}
	if ok {
		s.logger.Debug("content deduplicated", "checksum", p.StoredOID())
		return p, nil
	}
	size := p.Size
	if p.Encrypted() {
		size = p.EncSize
	}
	if err := s.blobs.Put(ctx, p.StoredOID(), bytes.NewReader(stored), size); err != nil {
		return Pointer{}, fmt.Errorf("uploading content: %w", err)
	}
	return p, nil
}

// AddFile registers a new managed file with its initial content.
// The file starts at revision 0, authored by the actor, unlocked.
func (s *Service) AddFile(ctx context.Context, actor Actor, name, description string, content io.Reader) error {
	if err := validFilename(name); err != nil {
		return err
	}
	ptr, err := s.storeContent(ctx, content)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, actor.Name, []string{RecordMetadata}, func(st *state) (Changeset, string, error) {
		next, err := st.metadata.Add(FileMetadata{
			Filename:    name,
			Description: description,
			Author:      actor.Name,
			CreatedAt:   s.clock.Now().UTC(),
			Revision:    0,
		})
		if err != nil {
			return Changeset{}, "", err
		}
		cs := NewChangeset()
		cs.SetRecord(RecordMetadata, next)
		cs.SetFile(name, ptr.Encode())
		return cs, fmt.Sprintf("added %s", name), nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("file added", "file", name, "user", actor.Name)
	return nil
}

// Checkout acquires the exclusive edit lock on a file. Any role may check
// out any existing, unlocked file.
func (s *Service) Checkout(ctx context.Context, actor Actor, name, message string) error {
	if err := validFilename(name); err != nil {
		return err
	}
	err := s.mutate(ctx, actor.Name, []string{RecordLocks, RecordMetadata}, func(st *state) (Changeset, string, error) {
		if _, ok := st.metadata[name]; !ok {
			return Changeset{}, "", &NotFoundError{What: "file", Name: name}
		}
		next, err := st.locks.Acquire(name, actor.Name, message, s.clock.Now().UTC())
		if err != nil {
			return Changeset{}, "", err
		}
		cs := NewChangeset()
		cs.SetRecord(RecordLocks, next)
		return cs, fmt.Sprintf("checked out %s: %s", name, message), nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("file checked out", "file", name, "user", actor.Name)
	return nil
}

// Checkin releases the actor's lock on a file, increments its revision by
// exactly one, optionally replaces its content, and notifies the part's
// subscribers. Only the lock owner may check in; privileged roles use
// Release with force to discard someone else's checkout instead.
// Returns the new revision.
func (s *Service) Checkin(ctx context.Context, actor Actor, name, message string, content io.Reader) (int, error) {
	if err := validFilename(name); err != nil {
		return 0, err
	}
	var ptr *Pointer
	if content != nil {
		p, err := s.storeContent(ctx, content)
		if err != nil {
			return 0, err
		}
		ptr = &p
	}

	keys := []string{RecordLocks, RecordMetadata, RecordSubscriptions, RecordNotifications}
	revision := 0
	err := s.mutate(ctx, actor.Name, keys, func(st *state) (Changeset, string, error) {
		meta, ok := st.metadata[name]
		if !ok {
			return Changeset{}, "", &NotFoundError{What: "file", Name: name}
		}
		nextLocks, err := st.locks.Release(name, actor.Name, false)
		if err != nil {
			return Changeset{}, "", err
		}

		// The freshly loaded revision is the baseline; a conflicted save
		// rereads it, so concurrent checkins can never skip or double-count.
		meta.Revision++
		revision = meta.Revision

		cs := NewChangeset()
		cs.SetRecord(RecordLocks, nextLocks)
		cs.SetRecord(RecordMetadata, st.metadata.Update(meta))
		if ptr != nil {
			cs.SetFile(name, ptr.Encode())
		}

		if part, ok := s.scheme.PartNumberOf(name); ok {
			var entries []Notification
			for _, subscriber := range st.subs.Subscribers(part) {
				if subscriber == actor.Name {
					continue
				}
				entries = append(entries, Notification{
					ID:        s.idgen.New(),
					Recipient: subscriber,
					Message:   fmt.Sprintf("%s checked in %s (revision %d): %s", actor.Name, name, meta.Revision, message),
					Timestamp: s.clock.Now().UTC(),
				})
			}
			if len(entries) > 0 {
				cs.SetRecord(RecordNotifications, st.notes.Append(entries...))
			}
		}
		return cs, fmt.Sprintf("checked in %s as revision %d: %s", name, meta.Revision, message), nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("file checked in", "file", name, "user", actor.Name, "revision", revision)
	return revision, nil
}

// Release removes the lock on a file without a revision bump, abandoning
// the checkout. Without force only the lock owner may release; with force
// an admin or supervisor may discard another user's lock.
func (s *Service) Release(ctx context.Context, actor Actor, name string, force bool) error {
	if err := validFilename(name); err != nil {
		return err
	}
	if force {
		if err := canForceRelease(actor, name); err != nil {
			return err
		}
	}
	err := s.mutate(ctx, actor.Name, []string{RecordLocks}, func(st *state) (Changeset, string, error) {
		next, err := st.locks.Release(name, actor.Name, force)
		if err != nil {
			return Changeset{}, "", err
		}
		cs := NewChangeset()
		cs.SetRecord(RecordLocks, next)
		summary := fmt.Sprintf("released %s", name)
		if force {
			summary = fmt.Sprintf("force-released %s", name)
		}
		return cs, summary, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("lock released", "file", name, "user", actor.Name, "force", force)
	return nil
}

// EditDescription changes a file's description. Permitted to the file's
// author and to admins.
func (s *Service) EditDescription(ctx context.Context, actor Actor, name, description string) error {
	if err := validFilename(name); err != nil {
		return err
	}
	return s.mutate(ctx, actor.Name, []string{RecordMetadata}, func(st *state) (Changeset, string, error) {
		meta, ok := st.metadata[name]
		if !ok {
			return Changeset{}, "", &NotFoundError{What: "file", Name: name}
		}
		if err := canEditMetadata(actor, meta); err != nil {
			return Changeset{}, "", err
		}
		meta.Description = description
		cs := NewChangeset()
		cs.SetRecord(RecordMetadata, st.metadata.Update(meta))
		return cs, fmt.Sprintf("edited description of %s", name), nil
	})
}

// DeleteFile removes a managed file and its metadata. Admin or supervisor
// only, and never while the file is checked out.
func (s *Service) DeleteFile(ctx context.Context, actor Actor, name string) error {
	if err := validFilename(name); err != nil {
		return err
	}
	if err := canDeleteFile(actor, name); err != nil {
		return err
	}
	return s.mutate(ctx, actor.Name, []string{RecordLocks, RecordMetadata}, func(st *state) (Changeset, string, error) {
		if _, ok := st.metadata[name]; !ok {
			return Changeset{}, "", &NotFoundError{What: "file", Name: name}
		}
		if lock, ok := st.locks.Get(name); ok {
			return Changeset{}, "", &AlreadyLockedError{Filename: name, Owner: lock.LockedBy}
		}
		cs := NewChangeset()
		cs.SetRecord(RecordMetadata, st.metadata.Remove(name))
		cs.RemoveFile(name)
		return cs, fmt.Sprintf("deleted %s", name), nil
	})
}

// ChangeRole assigns a role to a user. Admins may manage ordinary users;
// any change into or out of a privileged tier needs a supervisor.
func (s *Service) ChangeRole(ctx context.Context, actor Actor, target string, role Role) error {
	if target == "" {
		return fmt.Errorf("target user is empty")
	}
	return s.mutate(ctx, actor.Name, []string{RecordRoles}, func(st *state) (Changeset, string, error) {
		if err := canAssignRole(actor, target, st.roles.RoleOf(target), role); err != nil {
			return Changeset{}, "", err
		}
		cs := NewChangeset()
		cs.SetRecord(RecordRoles, st.roles.Assign(target, role))
		return cs, fmt.Sprintf("set role of %s to %s", target, role), nil
	})
}

// SetPartRevision sets a part's designated current revision label. The
// label is a manual designation; it is never derived from filenames.
func (s *Service) SetPartRevision(ctx context.Context, actor Actor, part, rev string) error {
	if !s.scheme.ValidPartNumber(part) {
		return fmt.Errorf("invalid part number %q", part)
	}
	if err := canEditPart(actor, part); err != nil {
		return err
	}
	return s.mutate(ctx, actor.Name, []string{RecordParts}, func(st *state) (Changeset, string, error) {
		cs := NewChangeset()
		cs.SetRecord(RecordParts, st.parts.SetCurrentRev(part, rev))
		return cs, fmt.Sprintf("set current revision of part %s to %s", part, rev), nil
	})
}

// EditPartDescription changes a part's description.
func (s *Service) EditPartDescription(ctx context.Context, actor Actor, part, description string) error {
	if !s.scheme.ValidPartNumber(part) {
		return fmt.Errorf("invalid part number %q", part)
	}
	if err := canEditPart(actor, part); err != nil {
		return err
	}
	return s.mutate(ctx, actor.Name, []string{RecordParts}, func(st *state) (Changeset, string, error) {
		cs := NewChangeset()
		cs.SetRecord(RecordParts, st.parts.SetDescription(part, description))
		return cs, fmt.Sprintf("edited description of part %s", part), nil
	})
}

// Subscribe adds the actor to a part's subscriber list. Subscribing twice
// is a no-op that skips the save entirely.
func (s *Service) Subscribe(ctx context.Context, actor Actor, part string) error {
	if !s.scheme.ValidPartNumber(part) {
		return fmt.Errorf("invalid part number %q", part)
	}
	return s.mutate(ctx, actor.Name, []string{RecordSubscriptions}, func(st *state) (Changeset, string, error) {
		next, changed := st.subs.Subscribe(part, actor.Name)
		cs := NewChangeset()
		if changed {
			cs.SetRecord(RecordSubscriptions, next)
		}
		return cs, fmt.Sprintf("subscribed to part %s", part), nil
	})
}

// Unsubscribe removes the actor from a part's subscriber list.
// Unsubscribing when not subscribed is a no-op.
func (s *Service) Unsubscribe(ctx context.Context, actor Actor, part string) error {
	if !s.scheme.ValidPartNumber(part) {
		return fmt.Errorf("invalid part number %q", part)
	}
	return s.mutate(ctx, actor.Name, []string{RecordSubscriptions}, func(st *state) (Changeset, string, error) {
		next, changed := st.subs.Unsubscribe(part, actor.Name)
		cs := NewChangeset()
		if changed {
			cs.SetRecord(RecordSubscriptions, next)
		}
		return cs, fmt.Sprintf("unsubscribed from part %s", part), nil
	})
}

// MarkAllRead marks every one of the actor's notifications read and returns
// how many changed. Other users' entries are never touched.
func (s *Service) MarkAllRead(ctx context.Context, actor Actor) (int, error) {
	marked := 0
	err := s.mutate(ctx, actor.Name, []string{RecordNotifications}, func(st *state) (Changeset, string, error) {
		next, changed := st.notes.MarkAllRead(actor.Name)
		marked = changed
		cs := NewChangeset()
		if changed > 0 {
			cs.SetRecord(RecordNotifications, next)
		}
		return cs, fmt.Sprintf("marked %d notifications read", changed), nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// FileView is the per-file listing the system presents: metadata joined
// with lock state and part grouping. Mismatch is advisory only; it flags a
// file whose name-embedded revision label differs from its part's
// designated current revision.
type FileView struct {
	FileMetadata
	Lock          *FileLock
	PartNumber    string
	RevisionLabel string
	Mismatch      bool
}

// PartView joins a part record with the files grouped under it.
type PartView struct {
	Part
	Files []string
}

func (s *Service) fileView(st *state, meta FileMetadata) FileView {
	v := FileView{FileMetadata: meta}
	if lock, ok := st.locks.Get(meta.Filename); ok {
		l := lock
		v.Lock = &l
	}
	if num, ok := s.scheme.PartNumberOf(meta.Filename); ok {
		v.PartNumber = num
		v.RevisionLabel = s.scheme.LabelOf(meta.Filename)
		v.Mismatch = s.scheme.RevisionMismatch(meta.Filename, st.parts)
	}
	return v
}

// ListFiles returns a view of every managed file, sorted by name.
func (s *Service) ListFiles(ctx context.Context) ([]FileView, error) {
	st, err := s.view(ctx, RecordLocks, RecordMetadata, RecordParts)
	if err != nil {
		return nil, err
	}
	views := make([]FileView, 0, len(st.metadata))
	for _, meta := range st.metadata {
		views = append(views, s.fileView(st, meta))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Filename < views[j].Filename })
	return views, nil
}

// GetFile returns the view of a single managed file.
func (s *Service) GetFile(ctx context.Context, name string) (FileView, error) {
	if err := validFilename(name); err != nil {
		return FileView{}, err
	}
	st, err := s.view(ctx, RecordLocks, RecordMetadata, RecordParts)
	if err != nil {
		return FileView{}, err
	}
	meta, ok := st.metadata[name]
	if !ok {
		return FileView{}, &NotFoundError{What: "file", Name: name}
	}
	return s.fileView(st, meta), nil
}

// ListParts returns every part with the files grouped under it, sorted by
// part number. Parts appear when they have a record or at least one file.
func (s *Service) ListParts(ctx context.Context) ([]PartView, error) {
	st, err := s.view(ctx, RecordMetadata, RecordParts)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[string]*PartView)
	for num, part := range st.parts {
		byNumber[num] = &PartView{Part: part}
	}
	for name := range st.metadata {
		num, ok := s.scheme.PartNumberOf(name)
		if !ok {
			continue
		}
		v, ok := byNumber[num]
		if !ok {
			v = &PartView{Part: Part{Number: num}}
			byNumber[num] = v
		}
		v.Files = append(v.Files, name)
	}
	views := make([]PartView, 0, len(byNumber))
	for _, v := range byNumber {
		sort.Strings(v.Files)
		views = append(views, *v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Number < views[j].Number })
	return views, nil
}

// Notifications returns the user's inbox in ledger order.
func (s *Service) Notifications(ctx context.Context, user string) ([]Notification, error) {
	st, err := s.view(ctx, RecordNotifications)
	if err != nil {
		return nil, err
	}
	return st.notes.ForRecipient(user), nil
}

// ResolveRole returns the user's effective role from the roles record.
// Users with no explicit assignment are ordinary users.
func (s *Service) ResolveRole(ctx context.Context, user string) (Role, error) {
	st, err := s.view(ctx, RecordRoles)
	if err != nil {
		return RoleUser, err
	}
	return st.roles.RoleOf(user), nil
}

// OpenFile writes a managed file's current content to w, fetching it from
// the blob store through its pointer. Encrypted content needs an unlocked
// DecryptionContext; dec may be nil otherwise.
func (s *Service) OpenFile(ctx context.Context, name string, w io.Writer, dec DecryptionContext) error {
	if err := validFilename(name); err != nil {
		return err
	}
	return s.guard.WithLock(ctx, func() error {
		st, err := s.loadState(ctx, RecordMetadata)
		if err != nil {
			return err
		}
		if _, ok := st.metadata[name]; !ok {
			return &NotFoundError{What: "file", Name: name}
		}
		raw, err := s.store.ReadFile(ctx, FilesDir+"/"+name)
		if err != nil {
			return fmt.Errorf("reading pointer: %w", err)
		}
		ptr, err := ParsePointer(raw)
		if err != nil {
			return fmt.Errorf("parsing pointer for %s: %w", name, err)
		}
		if !ptr.Encrypted() {
			if err := s.blobs.Get(ctx, ptr.OID, w); err != nil {
				return fmt.Errorf("fetching content: %w", err)
			}
			return nil
		}
		if dec == nil {
			return fmt.Errorf("content of %s is encrypted: unlock the private key first", name)
		}
		var buf bytes.Buffer
		if err := s.blobs.Get(ctx, ptr.EncOID, &buf); err != nil {
			return fmt.Errorf("fetching content: %w", err)
		}
		if err := dec.Decrypt(&buf, w); err != nil {
			return fmt.Errorf("decrypting content: %w", err)
		}
		return nil
	})
}

// History returns the store's recent commits, the system's audit trail.
// An empty path covers the whole store; a record key (e.g. "locks") or a
// files/<name> path narrows it.
func (s *Service) History(ctx context.Context, path string, limit int) ([]CommitInfo, error) {
	filter := historyPath(path)
	var commits []CommitInfo
	err := s.guard.WithLock(ctx, func() error {
		// Sync first so the history includes other replicas' commits.
		if err := s.store.Load(ctx, map[string]any{}); err != nil {
			return fmt.Errorf("loading records: %w", err)
		}
		var err error
		commits, err = s.store.History(ctx, filter, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}
