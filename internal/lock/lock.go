// Package lock implements the per-stanza advisory file lock that
// serializes mutating commands: one lock per (stanza, kind), acquired
// non-blocking, released on every process exit path.
package lock

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

var logger = loggo.GetLogger("pgbackrest.lock")

// Kind names the two lock classes a stanza can hold independently: an
// archive-push/get daemon and a backup/restore/expire command never
// contend with each other, only with another instance of themselves.
type Kind string

const (
	KindArchive Kind = "archive"
	KindBackup  Kind = "backup"
)

// Lock is a held advisory lock. Release is idempotent.
type Lock struct {
	path   string
	unlock func() error
}

// HeldError reports that a lock is already held by another process,
// naming the stanza/kind and the holder's PID as read from the lock
// file at the moment of conflict.
type HeldError struct {
	Stanza    string
	Kind      Kind
	HolderPID string
}

func (e *HeldError) Error() string {
	return "lock for stanza " + strconv.Quote(e.Stanza) + " (" + string(e.Kind) +
		") is already held by pid " + e.HolderPID
}

// Acquire takes the (stanza, kind) lock rooted at lockDir
// (<lock-path>/<stanza>-<kind>.lock), non-blocking. On conflict it
// returns a *HeldError naming the current holder's PID; the caller
// maps that to the lock-acquire exit code per spec.md §6.
func Acquire(lockDir, stanza string, kind Kind) (*Lock, error) {
	if err := os.MkdirAll(lockDir, 0750); err != nil {
		return nil, errors.Annotatef(err, "create lock directory %q", lockDir)
	}
	path := filepath.Join(lockDir, stanza+"-"+string(kind)+".lock")

	unlock, err := posix.LockPath(path, strconv.Itoa(os.Getpid()))
	if err != nil {
		if held, ok := err.(*posix.LockHeldError); ok {
			return nil, &HeldError{Stanza: stanza, Kind: kind, HolderPID: held.Holder}
		}
		return nil, errors.Annotatef(err, "acquire lock %q", path)
	}
	logger.Debugf("acquired %s lock for stanza %q (pid %d)", kind, stanza, os.Getpid())
	return &Lock{path: path, unlock: unlock}, nil
}

// Release drops the lock. Calling Release more than once is safe; the
// second call is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.unlock == nil {
		return nil
	}
	unlock := l.unlock
	l.unlock = nil
	if err := unlock(); err != nil {
		return errors.Annotatef(err, "release lock %q", l.path)
	}
	logger.Debugf("released lock %q", l.path)
	return nil
}
