// Package storage defines the repository storage abstraction every
// backend (POSIX, S3, Azure Blob, SSH-remote) implements, plus the
// feature-flag mechanism callers use to branch on backend capability
// rather than backend identity.
package storage

import (
	"time"

	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

// InfoLevel controls how much metadata Info/List fetches, trading
// detail for cost on backends where a deeper stat is a separate round
// trip (object stores).
type InfoLevel int

const (
	// InfoLevelExists checks only existence.
	InfoLevelExists InfoLevel = iota
	// InfoLevelBasic adds type, size, and modification time.
	InfoLevelBasic
	// InfoLevelDetail adds owner/group/mode where the backend has them.
	InfoLevelDetail
)

// InfoType classifies a path's entry type.
type InfoType int

const (
	InfoTypeFile InfoType = iota
	InfoTypeDir
	InfoTypeLink
	InfoTypeSpecial
)

// InfoRecord describes one path. A Driver returns (nil, nil) from Info
// when the path doesn't exist rather than an error, so callers don't
// need to type-switch on a NotFound error for the expected-missing
// case.
type InfoRecord struct {
	Name         string
	Type         InfoType
	Size         int64
	ModTime      time.Time
	Mode         uint32
	User         string
	Group        string
	LinkDest     string // populated at InfoLevelDetail for InfoTypeLink
}

// Feature is a capability a Driver may or may not advertise. Callers
// branch on features, never on backend identity, so a new backend with
// the same feature set needs no caller changes.
type Feature string

const (
	FeaturePath            Feature = "path"     // supports real directories (path_create/path_remove)
	FeatureCompress        Feature = "compress" // backend applies its own transport compression
	FeatureHardlink        Feature = "hardlink" // supports hardlinks, for incremental-backup space savings
	FeatureInfoDetail      Feature = "info-detail"
	FeatureSymlink         Feature = "symlink"
	FeatureEncryptedAtRest Feature = "encrypted-at-rest"
)

// WriteOptions configures a new write endpoint.
type WriteOptions struct {
	Atomic           bool // write to a .tmp sibling, sync, then rename into place
	CreatePath       bool // create missing parent directories
	Mode             uint32
	User             string
	Group            string
	ModificationTime time.Time
}

// ReadOptions configures a new read endpoint.
type ReadOptions struct {
	IgnoreMissing bool
	Offset        int64
	Limit         int64 // 0 means "no limit"
}

// Driver is the interface every storage backend implements. Paths are
// always relative to the driver's own root (the repository path or
// bucket prefix); the driver never sees or needs an absolute
// filesystem path from the caller.
type Driver interface {
	// Features returns the set of capabilities this driver advertises.
	Features() map[Feature]bool

	// Info returns the record for path, or (nil, nil) if it doesn't
	// exist.
	Info(path string, level InfoLevel) (*InfoRecord, error)

	// List returns every entry directly under path (non-recursive,
	// matching expression if non-empty), at level detail. Object-store
	// backends page internally; callers see one flat slice.
	List(path string, expression string, level InfoLevel) ([]InfoRecord, error)

	// NewRead opens path for reading. IgnoreMissing in opts makes a
	// missing path return (nil, nil) instead of an error.
	NewRead(path string, opts ReadOptions) (streamio.ReadEndpoint, error)

	// NewWrite opens path for writing, per opts.
	NewWrite(path string, opts WriteOptions) (streamio.WriteEndpoint, error)

	// PathCreate creates path as a directory. noErrorIfExists silences
	// the already-exists case; recurse creates missing parents.
	PathCreate(path string, mode uint32, noErrorIfExists, recurse bool) error

	// PathRemove removes path and, if recurse, everything under it.
	PathRemove(path string, recurse bool) error

	// Remove deletes a single file at path. errorOnMissing controls
	// whether a missing path is an error or a silent no-op.
	Remove(path string, errorOnMissing bool) error

	// Move relocates src to dst, as a rename where the backend supports
	// it and as copy-then-delete otherwise.
	Move(src, dst string) error
}

// Storage wraps a Driver with the name used in log messages and error
// annotations (the repository's configured label, e.g. "repo1").
type Storage struct {
	Name   string
	Driver Driver
}

// New returns a Storage facade over driver.
func New(name string, driver Driver) *Storage {
	return &Storage{Name: name, Driver: driver}
}

// HasFeature reports whether the underlying driver advertises f.
func (s *Storage) HasFeature(f Feature) bool {
	return s.Driver.Features()[f]
}
