package backup

import (
	"io"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/filter"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// BuildManifest walks pgData (a storage.Driver rooted at the cluster's
// data directory) and produces the manifest for a backup of the given
// plan. For a differential or incremental backup, priorManifests holds
// every manifest in plan.References (keyed by label); a file whose size
// and modification time match its entry in the immediate prior
// manifest is recorded as a Reference instead of being re-read, per
// spec.md §3's "optional per-file reference to an ancestor backup
// (meaning reuse the copy from that backup)".
func BuildManifest(pgData storage.Driver, label string, plan *Plan, dbID int, priorManifests map[string]*info.Manifest) (*info.Manifest, error) {
	m := info.NewManifest(label, plan.Type, dbID)
	m.Prior = plan.Prior

	entries, err := walkTree(pgData, "")
	if err != nil {
		return nil, errors.Annotate(err, "walk data directory")
	}

	var prior *info.Manifest
	if plan.Prior != "" {
		prior = priorManifests[plan.Prior]
	}

	for _, e := range entries {
		switch e.Record.Type {
		case storage.InfoTypeDir:
			m.Paths[e.Path] = info.PathEntry{Mode: e.Record.Mode, User: e.Record.User, Group: e.Record.Group}
		case storage.InfoTypeLink:
			m.Links[e.Path] = info.LinkEntry{Destination: e.Record.LinkDest, User: e.Record.User, Group: e.Record.Group}
		case storage.InfoTypeFile:
			entry, err := buildFileEntry(pgData, e, prior)
			if err != nil {
				return nil, errors.Annotatef(err, "build manifest entry %q", e.Path)
			}
			m.Files[e.Path] = entry
		}
	}
	return m, nil
}

func buildFileEntry(pgData storage.Driver, e walkEntry, prior *info.Manifest) (info.FileEntry, error) {
	base := info.FileEntry{
		Size:      e.Record.Size,
		Mode:      e.Record.Mode,
		User:      e.Record.User,
		Group:     e.Record.Group,
		Timestamp: e.Record.ModTime,
	}

	if prior != nil {
		if priorEntry, ok := prior.Files[e.Path]; ok &&
			priorEntry.Size == base.Size && priorEntry.Timestamp.Equal(base.Timestamp) {
			base.Checksum = priorEntry.Checksum
			if priorEntry.Reference != "" {
				base.Reference = priorEntry.Reference
			} else {
				base.Reference = prior.Label
			}
			return base, nil
		}
	}

	checksum, err := hashFile(pgData, e.Path)
	if err != nil {
		return info.FileEntry{}, err
	}
	base.Checksum = checksum
	return base, nil
}

// hashFile reads path from driver through a SHA-1 hash filter, per
// spec.md §4.4's content-hashing filter, returning the hex digest.
func hashFile(driver storage.Driver, path string) (string, error) {
	r, err := driver.NewRead(path, storage.ReadOptions{})
	if err != nil {
		return "", errors.Trace(err)
	}
	defer r.Close()

	h := filter.NewSHA1Filter()
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, _, ferr := h.Process(buf[:n]); ferr != nil {
				return "", errors.Trace(ferr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Trace(err)
		}
	}
	if _, _, err := h.Flush(); err != nil {
		return "", errors.Trace(err)
	}
	return h.Result().(string), nil
}
