package pdm

import (
	"errors"
	"fmt"
)

// Sentinel errors classify every failure the service can return. Callers
// branch with errors.Is; the typed errors further down carry detail and are
// matched with errors.As.
var (
	// ErrSync means local state could not be synchronized with the remote
	// repository. Retrying later is reasonable.
	ErrSync = errors.New("cannot synchronize with remote repository")

	// ErrConflict means the remote advanced while an update was in flight
	// and the update was rejected. The service retries these internally;
	// if one escapes, every retry attempt lost the race.
	ErrConflict = errors.New("remote repository has diverged")

	// ErrBusy means another process held the working copy for longer than
	// the guard was willing to wait.
	ErrBusy = errors.New("working copy is in use by another process")

	// ErrAlreadyLocked means the file already has an active lock.
	ErrAlreadyLocked = errors.New("file is already checked out")

	// ErrNotLocked means the operation requires an active lock and there is none.
	ErrNotLocked = errors.New("file is not checked out")

	// ErrNotOwner means the lock exists but belongs to someone else.
	ErrNotOwner = errors.New("file is checked out by another user")

	// ErrUnauthorized means the actor's role does not permit the operation.
	ErrUnauthorized = errors.New("operation not permitted")

	// ErrNotFound means the named file, part or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists means a create would overwrite something already present.
	ErrExists = errors.New("already exists")

	// ErrRepositoryCorrupt means the backing repository reported an internal
	// failure that sync cannot recover from. Manual intervention is needed.
	ErrRepositoryCorrupt = errors.New("repository is corrupt")
)

// AlreadyLockedError reports who holds the lock that blocked an operation.
type AlreadyLockedError struct {
	Filename string
	Owner    string
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("file %q is already checked out by %s", e.Filename, e.Owner)
}

func (e *AlreadyLockedError) Is(target error) bool { return target == ErrAlreadyLocked }

// NotLockedError reports an attempt to operate on a lock that does not exist.
type NotLockedError struct {
	Filename string
}

func (e *NotLockedError) Error() string {
	return fmt.Sprintf("file %q is not checked out", e.Filename)
}

func (e *NotLockedError) Is(target error) bool { return target == ErrNotLocked }

// NotOwnerError reports an attempt to release or check in a lock held by
// another user.
type NotOwnerError struct {
	Filename string
	Owner    string
	User     string
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("file %q is checked out by %s, not %s", e.Filename, e.Owner, e.User)
}

func (e *NotOwnerError) Is(target error) bool { return target == ErrNotOwner }

// NotFoundError reports a reference to a file, part or record that does
// not exist.
type NotFoundError struct {
	What string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.What, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UnauthorizedError reports a role check failure.
type UnauthorizedError struct {
	User   string
	Role   Role
	Action string
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s (role %s) may not %s: %s", e.User, e.Role, e.Action, e.Reason)
}

func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// ErrorKind maps err to the short taxonomy name used in logs and the
// operation journal. Unrecognized errors map to "internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrAlreadyLocked):
		return "already_locked"
	case errors.Is(err, ErrNotLocked):
		return "not_locked"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExists):
		return "exists"
	case errors.Is(err, ErrRepositoryCorrupt):
		return "repository_corrupt"
	case errors.Is(err, ErrSync):
		return "sync"
	default:
		return "internal"
	}
}
