// Package posix implements the storage.Driver interface over the local
// filesystem: plain files and directories, with an optional
// fsync-per-path for repositories that need durability guarantees
// stronger than the OS write-back cache gives by default.
package posix

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"golang.org/x/sys/unix"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

var logger = loggo.GetLogger("pgbackrest.storage.posix")

// Driver stores repository objects as ordinary files rooted at Root.
type Driver struct {
	Root  string
	Fsync bool
}

// New returns a POSIX driver rooted at root. If fsync is true, every
// write endpoint syncs the file (and, for atomic writes, the
// containing directory) before closing.
func New(root string, fsync bool) *Driver {
	return &Driver{Root: root, Fsync: fsync}
}

func (d *Driver) resolve(path string) string {
	return filepath.Join(d.Root, path)
}

// Features reports the full local-filesystem capability set.
func (d *Driver) Features() map[storage.Feature]bool {
	return map[storage.Feature]bool{
		storage.FeaturePath:            true,
		storage.FeatureHardlink:        true,
		storage.FeatureInfoDetail:      true,
		storage.FeatureSymlink:         true,
		storage.FeatureCompress:        false,
		storage.FeatureEncryptedAtRest: false,
	}
}

func (d *Driver) Info(path string, level storage.InfoLevel) (*storage.InfoRecord, error) {
	full := d.resolve(path)
	fi, err := os.Lstat(full)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "stat %q", path)
	}
	return d.toInfoRecord(filepath.Base(path), full, fi, level), nil
}

func (d *Driver) toInfoRecord(name, full string, fi os.FileInfo, level storage.InfoLevel) *storage.InfoRecord {
	rec := &storage.InfoRecord{
		Name:    name,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Mode:    uint32(fi.Mode().Perm()),
	}
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		rec.Type = storage.InfoTypeLink
		if level >= storage.InfoLevelDetail {
			if dest, err := os.Readlink(full); err == nil {
				rec.LinkDest = dest
			}
		}
	case fi.IsDir():
		rec.Type = storage.InfoTypeDir
	default:
		rec.Type = storage.InfoTypeFile
	}
	if level >= storage.InfoLevelDetail {
		if st, ok := fi.Sys().(*syscall.Stat_t); ok {
			rec.User = strconv.FormatUint(uint64(st.Uid), 10)
			rec.Group = strconv.FormatUint(uint64(st.Gid), 10)
		}
	}
	return rec
}

func (d *Driver) List(path string, expression string, level storage.InfoLevel) ([]storage.InfoRecord, error) {
	full := d.resolve(path)
	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("path %q", path)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "list %q", path)
	}

	var out []storage.InfoRecord
	for _, e := range entries {
		if expression != "" {
			if ok, err := filepath.Match(expression, e.Name()); err != nil {
				return nil, errors.Trace(err)
			} else if !ok {
				continue
			}
		}
		fi, err := e.Info()
		if err != nil {
			return nil, errors.Annotatef(err, "stat %q", e.Name())
		}
		out = append(out, *d.toInfoRecord(e.Name(), filepath.Join(full, e.Name()), fi, level))
	}
	return out, nil
}

func (d *Driver) NewRead(path string, opts storage.ReadOptions) (streamio.ReadEndpoint, error) {
	full := d.resolve(path)
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		if opts.IgnoreMissing {
			return nil, nil
		}
		return nil, errors.NotFoundf("path %q", path)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "open %q for read", path)
	}
	if opts.Offset > 0 {
		if _, err := f.Seek(opts.Offset, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.Annotatef(err, "seek %q", path)
		}
	}
	if opts.Limit > 0 {
		return streamio.NewReadEndpoint(&limitedReadCloser{r: io.LimitReader(f, opts.Limit), c: f}), nil
	}
	return streamio.NewReadEndpoint(f), nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

func (d *Driver) NewWrite(path string, opts storage.WriteOptions) (streamio.WriteEndpoint, error) {
	full := d.resolve(path)
	if opts.CreatePath {
		if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
			return nil, errors.Annotatef(err, "create parent directories for %q", path)
		}
	}

	mode := os.FileMode(0640)
	if opts.Mode != 0 {
		mode = os.FileMode(opts.Mode)
	}

	target := full
	if opts.Atomic {
		target = full + ".tmp"
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "open %q for write", path)
	}

	return &writeEndpoint{
		f:        f,
		driver:   d,
		full:     full,
		tmp:      target,
		atomic:   opts.Atomic,
		modTime:  opts.ModificationTime,
	}, nil
}

type writeEndpoint struct {
	f       *os.File
	driver  *Driver
	full    string
	tmp     string
	atomic  bool
	modTime time.Time
	closed  bool
}

func (w *writeEndpoint) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *writeEndpoint) Flush() error { return nil }

func (w *writeEndpoint) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.driver.Fsync {
		if err := w.f.Sync(); err != nil {
			w.f.Close()
			return errors.Annotatef(err, "fsync %q", w.tmp)
		}
	}
	if err := w.f.Close(); err != nil {
		return errors.Annotatef(err, "close %q", w.tmp)
	}
	if !w.modTime.IsZero() {
		if err := os.Chtimes(w.tmp, w.modTime, w.modTime); err != nil {
			logger.Warningf("chtimes %q: %v", w.tmp, err)
		}
	}
	if w.atomic {
		if err := os.Rename(w.tmp, w.full); err != nil {
			return errors.Annotatef(err, "rename %q to %q", w.tmp, w.full)
		}
		if w.driver.Fsync {
			if err := fsyncDir(filepath.Dir(w.full)); err != nil {
				logger.Warningf("fsync directory %q: %v", filepath.Dir(w.full), err)
			}
		}
	}
	return nil
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func (d *Driver) PathCreate(path string, mode uint32, noErrorIfExists, recurse bool) error {
	full := d.resolve(path)
	m := os.FileMode(0750)
	if mode != 0 {
		m = os.FileMode(mode)
	}
	var err error
	if recurse {
		err = os.MkdirAll(full, m)
	} else {
		err = os.Mkdir(full, m)
	}
	if os.IsExist(err) && noErrorIfExists {
		return nil
	}
	if err != nil {
		return errors.Annotatef(err, "create path %q", path)
	}
	return nil
}

func (d *Driver) PathRemove(path string, recurse bool) error {
	full := d.resolve(path)
	var err error
	if recurse {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Annotatef(err, "remove path %q", path)
	}
	return nil
}

func (d *Driver) Remove(path string, errorOnMissing bool) error {
	full := d.resolve(path)
	err := os.Remove(full)
	if os.IsNotExist(err) && !errorOnMissing {
		return nil
	}
	if err != nil {
		return errors.Annotatef(err, "remove %q", path)
	}
	return nil
}

func (d *Driver) Move(src, dst string) error {
	fullSrc, fullDst := d.resolve(src), d.resolve(dst)
	if err := os.MkdirAll(filepath.Dir(fullDst), 0750); err != nil {
		return errors.Annotatef(err, "create parent directories for %q", dst)
	}
	if err := os.Rename(fullSrc, fullDst); err != nil {
		return errors.Annotatef(err, "move %q to %q", src, dst)
	}
	return nil
}

// LockPath advisory-locks path for the lifetime of the process, used by
// internal/lock to serialize per-stanza operations across processes on
// the same host. It's exposed here rather than in internal/lock because
// only the POSIX backend can offer a real advisory lock; remote/object
// backends serialize through the protocol layer instead.
//
// On success, contents is written into the (now-locked) file, replacing
// whatever it held before — internal/lock uses this to record the
// holding PID. On conflict, LockHeldError.Holder carries the losing
// caller's best-effort read of whatever the current holder wrote there.
func LockPath(path string, contents string) (unlock func() error, err error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0640)
	if err != nil {
		return nil, errors.Annotatef(err, "open lock file %q", path)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			holder, _ := os.ReadFile(path)
			return nil, &LockHeldError{Path: path, Holder: string(holder)}
		}
		return nil, errors.Annotatef(err, "flock %q", path)
	}
	if err := unix.Ftruncate(fd, 0); err != nil {
		unix.Flock(fd, unix.LOCK_UN)
		unix.Close(fd)
		return nil, errors.Annotatef(err, "truncate lock file %q", path)
	}
	if _, err := unix.Write(fd, []byte(contents)); err != nil {
		unix.Flock(fd, unix.LOCK_UN)
		unix.Close(fd)
		return nil, errors.Annotatef(err, "write lock file %q", path)
	}
	return func() error {
		unix.Flock(fd, unix.LOCK_UN)
		return unix.Close(fd)
	}, nil
}

// LockHeldError reports that path is already locked by another process,
// along with whatever that process recorded in the lock file (typically
// its PID).
type LockHeldError struct {
	Path   string
	Holder string
}

func (e *LockHeldError) Error() string {
	return "lock " + strconv.Quote(e.Path) + " already held by " + strconv.Quote(e.Holder)
}
