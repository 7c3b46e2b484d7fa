package pdm

import "time"

// LockSet maps filenames to their active locks. All transitions return a
// modified copy; the receiver is never mutated, so a failed save can retry
// from freshly loaded state without cleanup.
type LockSet map[string]FileLock

// Get returns the active lock for a file, if any.
func (s LockSet) Get(filename string) (FileLock, bool) {
	l, ok := s[filename]
	return l, ok
}

func (s LockSet) clone() LockSet {
	next := make(LockSet, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	return next
}

// Acquire adds a lock on filename for user. Fails with AlreadyLockedError
// if any lock exists on the file, including the user's own.
func (s LockSet) Acquire(filename, user, message string, at time.Time) (LockSet, error) {
	if cur, ok := s[filename]; ok {
		return nil, &AlreadyLockedError{Filename: filename, Owner: cur.LockedBy}
	}
	next := s.clone()
	next[filename] = FileLock{
		Filename: filename,
		LockedBy: user,
		LockedAt: at,
		Message:  message,
	}
	return next, nil
}

// Release removes the lock on filename. Without privilege only the lock
// owner may release; privileged callers may release any lock.
func (s LockSet) Release(filename, user string, privileged bool) (LockSet, error) {
	cur, ok := s[filename]
	if !ok {
		return nil, &NotLockedError{Filename: filename}
	}
	if !privileged && cur.LockedBy != user {
		return nil, &NotOwnerError{Filename: filename, Owner: cur.LockedBy, User: user}
	}
	next := s.clone()
	delete(next, filename)
	return next, nil
}
