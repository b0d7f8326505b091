package info

import (
	"time"

	"github.com/juju/errors"
)

// FileEntry is one file's record in a backup manifest: checksum, size,
// mode/ownership, mtime, and an optional reference to the ancestor
// backup whose copy is being reused (so the current backup doesn't
// need its own copy on disk).
type FileEntry struct {
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	Mode      uint32    `json:"mode"`
	User      string    `json:"user"`
	Group     string    `json:"group"`
	Timestamp time.Time `json:"timestamp"`
	Reference string    `json:"reference,omitempty"` // ancestor backup label, if reused
	// PageChecksumErrors lists corrupt block numbers found while
	// verifying this file as a PostgreSQL data page, empty if clean or
	// not applicable.
	PageChecksumErrors []uint32 `json:"page-checksum-errors,omitempty"`
}

// PathEntry records a directory target: its mode/ownership.
type PathEntry struct {
	Mode  uint32 `json:"mode"`
	User  string `json:"user"`
	Group string `json:"group"`
}

// LinkEntry records a symlink target (tablespace links, config links).
type LinkEntry struct {
	Destination string `json:"destination"`
	User        string `json:"user"`
	Group       string `json:"group"`
}

// Manifest is the per-backup file inventory: spec.md §4.2's "canonical
// per-backup file list plus... the set of tablespace/symlink targets,
// databases, and the option snapshot."
type Manifest struct {
	Label     string
	Type      BackupType
	Prior     string
	Timestamp time.Time
	DbID      int

	// ArchiveStart/ArchiveStop bound the WAL range this backup requires
	// for consistency, per spec.md §3.
	ArchiveStart string
	ArchiveStop  string

	Files map[string]FileEntry
	Paths map[string]PathEntry
	Links map[string]LinkEntry

	// Option is a flat snapshot of the option values in effect for this
	// backup, for `info`'s display and for restore-time defaults.
	Option map[string]string
}

// NewManifest returns an empty manifest for label.
func NewManifest(label string, typ BackupType, dbID int) *Manifest {
	return &Manifest{
		Label:  label,
		Type:   typ,
		DbID:   dbID,
		Files:  make(map[string]FileEntry),
		Paths:  make(map[string]PathEntry),
		Links:  make(map[string]LinkEntry),
		Option: make(map[string]string),
	}
}

// ValidateReferences checks the manifest reference invariant: every
// per-file Reference must name a label present in current (backup.info's
// [backup:current]) whose own manifest — looked up via
// ancestorManifests — contains that path with a matching checksum and
// size.
func (m *Manifest) ValidateReferences(current map[string]BackupRecord, ancestorManifests map[string]*Manifest) error {
	for path, entry := range m.Files {
		if entry.Reference == "" {
			continue
		}
		if _, ok := current[entry.Reference]; !ok {
			return errors.Errorf("%s: reference to unknown backup %q", path, entry.Reference)
		}
		ancestor, ok := ancestorManifests[entry.Reference]
		if !ok {
			return errors.Errorf("%s: manifest for referenced backup %q not available", path, entry.Reference)
		}
		ancestorEntry, ok := ancestor.Files[path]
		if !ok {
			return errors.Errorf("%s: not present in referenced backup %q's manifest", path, entry.Reference)
		}
		if ancestorEntry.Checksum != entry.Checksum || ancestorEntry.Size != entry.Size {
			return errors.Errorf("%s: referenced copy in %q has checksum/size %s/%d, want %s/%d",
				path, entry.Reference, ancestorEntry.Checksum, ancestorEntry.Size, entry.Checksum, entry.Size)
		}
	}
	return nil
}

func (m *Manifest) ToDocument() (*Document, error) {
	doc := NewDocument()
	if err := doc.Set("backup", "label", m.Label); err != nil {
		return nil, err
	}
	if err := doc.Set("backup", "type", m.Type); err != nil {
		return nil, err
	}
	if err := doc.Set("backup", "prior", m.Prior); err != nil {
		return nil, err
	}
	if err := doc.Set("backup", "timestamp", m.Timestamp); err != nil {
		return nil, err
	}
	if err := doc.Set("backup", "db-id", m.DbID); err != nil {
		return nil, err
	}
	if err := doc.Set("backup", "archive-start", m.ArchiveStart); err != nil {
		return nil, err
	}
	if err := doc.Set("backup", "archive-stop", m.ArchiveStop); err != nil {
		return nil, err
	}
	for path, entry := range m.Files {
		if err := doc.Set("target:file", path, entry); err != nil {
			return nil, err
		}
	}
	for path, entry := range m.Paths {
		if err := doc.Set("target:path", path, entry); err != nil {
			return nil, err
		}
	}
	for path, entry := range m.Links {
		if err := doc.Set("target:link", path, entry); err != nil {
			return nil, err
		}
	}
	for opt, val := range m.Option {
		if err := doc.Set("option", opt, val); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func ManifestFromDocument(doc *Document) (*Manifest, error) {
	m := &Manifest{
		Files:  make(map[string]FileEntry),
		Paths:  make(map[string]PathEntry),
		Links:  make(map[string]LinkEntry),
		Option: make(map[string]string),
	}

	if ok, err := doc.Get("backup", "label", &m.Label); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.New("manifest missing backup.label")
	}
	if _, err := doc.Get("backup", "type", &m.Type); err != nil {
		return nil, err
	}
	if _, err := doc.Get("backup", "prior", &m.Prior); err != nil {
		return nil, err
	}
	if _, err := doc.Get("backup", "timestamp", &m.Timestamp); err != nil {
		return nil, err
	}
	if _, err := doc.Get("backup", "db-id", &m.DbID); err != nil {
		return nil, err
	}
	if _, err := doc.Get("backup", "archive-start", &m.ArchiveStart); err != nil {
		return nil, err
	}
	if _, err := doc.Get("backup", "archive-stop", &m.ArchiveStop); err != nil {
		return nil, err
	}

	for _, path := range doc.SectionKeys("target:file") {
		var entry FileEntry
		if _, err := doc.Get("target:file", path, &entry); err != nil {
			return nil, err
		}
		m.Files[path] = entry
	}
	for _, path := range doc.SectionKeys("target:path") {
		var entry PathEntry
		if _, err := doc.Get("target:path", path, &entry); err != nil {
			return nil, err
		}
		m.Paths[path] = entry
	}
	for _, path := range doc.SectionKeys("target:link") {
		var entry LinkEntry
		if _, err := doc.Get("target:link", path, &entry); err != nil {
			return nil, err
		}
		m.Links[path] = entry
	}
	for _, opt := range doc.SectionKeys("option") {
		var val string
		if _, err := doc.Get("option", opt, &val); err != nil {
			return nil, err
		}
		m.Option[opt] = val
	}
	return m, nil
}
