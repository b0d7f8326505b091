package info

import (
	"strconv"
	"time"

	"github.com/juju/errors"
)

// BackupType classifies a backup's relationship to its predecessor.
type BackupType string

const (
	BackupFull         BackupType = "full"
	BackupDifferential BackupType = "diff"
	BackupIncremental  BackupType = "incr"
)

// BackupRecord is one entry in [backup:current]: the attributes
// spec.md §3/§4.2 lists for a completed, retained backup.
type BackupRecord struct {
	Label         string     `json:"label"`
	Type          BackupType `json:"type"`
	Prior         string     `json:"prior,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	SizeBytes     int64      `json:"size-bytes"`
	RepoSizeBytes int64      `json:"repo-size-bytes"`
	DbID          int        `json:"db-id"`
	// ArchiveStart/ArchiveStop bound the WAL segment range this backup
	// requires to be consistent: spec.md §3's "archive-start/stop WAL
	// segments" attribute, used by expire to determine which archived
	// segments no surviving backup still references.
	ArchiveStart string `json:"archive-start,omitempty"`
	ArchiveStop  string `json:"archive-stop,omitempty"`
}

// CipherInfo records the optional repository encryption parameters.
type CipherInfo struct {
	Type string `json:"cipher-type"`
}

// BackupInfo is the backup.info registry: the current cluster
// identity, its full incarnation history, and the set of valid
// retained backups.
type BackupInfo struct {
	DbID     int
	Version  string
	SystemID uint64
	History  map[int]DbHistoryEntry
	Current  map[string]BackupRecord // keyed by label
	Cipher   *CipherInfo
}

// NewBackupInfo returns a registry seeded with a single current
// cluster entry and no backups yet.
func NewBackupInfo(dbID int, version string, systemID uint64) *BackupInfo {
	return &BackupInfo{
		DbID:     dbID,
		Version:  version,
		SystemID: systemID,
		History:  map[int]DbHistoryEntry{dbID: {Version: version, SystemID: systemID}},
		Current:  make(map[string]BackupRecord),
	}
}

func (b *BackupInfo) ToDocument() (*Document, error) {
	doc := NewDocument()
	if err := doc.Set("db", "db-id", b.DbID); err != nil {
		return nil, err
	}
	if err := doc.Set("db", "db-version", b.Version); err != nil {
		return nil, err
	}
	if err := doc.Set("db", "db-system-id", b.SystemID); err != nil {
		return nil, err
	}
	for id, entry := range b.History {
		if err := doc.Set("db:history", strconv.Itoa(id), entry); err != nil {
			return nil, err
		}
	}
	for label, rec := range b.Current {
		if err := doc.Set("backup:current", label, rec); err != nil {
			return nil, err
		}
	}
	if b.Cipher != nil {
		if err := doc.Set("cipher", "cipher-type", b.Cipher.Type); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func BackupInfoFromDocument(doc *Document) (*BackupInfo, error) {
	b := &BackupInfo{
		History: make(map[int]DbHistoryEntry),
		Current: make(map[string]BackupRecord),
	}

	if ok, err := doc.Get("db", "db-id", &b.DbID); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.New("backup.info missing db.db-id")
	}
	if _, err := doc.Get("db", "db-version", &b.Version); err != nil {
		return nil, err
	}
	if _, err := doc.Get("db", "db-system-id", &b.SystemID); err != nil {
		return nil, err
	}

	for _, key := range doc.SectionKeys("db:history") {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Annotatef(err, "parse db:history key %q", key)
		}
		var entry DbHistoryEntry
		if _, err := doc.Get("db:history", key, &entry); err != nil {
			return nil, err
		}
		b.History[id] = entry
	}

	for _, label := range doc.SectionKeys("backup:current") {
		var rec BackupRecord
		if _, err := doc.Get("backup:current", label, &rec); err != nil {
			return nil, err
		}
		b.Current[label] = rec
	}

	var cipherType string
	if ok, err := doc.Get("cipher", "cipher-type", &cipherType); err != nil {
		return nil, err
	} else if ok {
		b.Cipher = &CipherInfo{Type: cipherType}
	}
	return b, nil
}
