package info

import (
	"strconv"

	"github.com/juju/errors"
)

// DbHistoryEntry records one PostgreSQL cluster incarnation's version
// and system identifier, keyed by db-id in ArchiveInfo/BackupInfo.
type DbHistoryEntry struct {
	Version  string `json:"db-version"`
	SystemID uint64 `json:"db-system-id"`
}

// ArchiveInfo is the archive.info registry: the current cluster
// identity plus every prior incarnation it has archived WAL for.
type ArchiveInfo struct {
	DbID     int
	Version  string
	SystemID uint64
	History  map[int]DbHistoryEntry
}

// NewArchiveInfo returns a registry seeded with a single current
// cluster entry, also recorded as history entry dbID.
func NewArchiveInfo(dbID int, version string, systemID uint64) *ArchiveInfo {
	return &ArchiveInfo{
		DbID:     dbID,
		Version:  version,
		SystemID: systemID,
		History:  map[int]DbHistoryEntry{dbID: {Version: version, SystemID: systemID}},
	}
}

// ToDocument renders a into the generic Document shape for Encode/Save.
func (a *ArchiveInfo) ToDocument() (*Document, error) {
	doc := NewDocument()
	if err := doc.Set("db", "db-id", a.DbID); err != nil {
		return nil, err
	}
	if err := doc.Set("db", "db-version", a.Version); err != nil {
		return nil, err
	}
	if err := doc.Set("db", "db-system-id", a.SystemID); err != nil {
		return nil, err
	}
	for id, entry := range a.History {
		if err := doc.Set("db:history", strconv.Itoa(id), entry); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// ArchiveInfoFromDocument reconstructs an ArchiveInfo from a decoded
// Document, per the [db]/[db:history] layout spec.md §4.2 assigns
// archive.info.
func ArchiveInfoFromDocument(doc *Document) (*ArchiveInfo, error) {
	a := &ArchiveInfo{History: make(map[int]DbHistoryEntry)}

	if ok, err := doc.Get("db", "db-id", &a.DbID); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.New("archive.info missing db.db-id")
	}
	if _, err := doc.Get("db", "db-version", &a.Version); err != nil {
		return nil, err
	}
	if _, err := doc.Get("db", "db-system-id", &a.SystemID); err != nil {
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
		a.History[id] = entry
	}
	return a, nil
}
