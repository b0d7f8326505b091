package info

import (
	"strings"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// ManifestPath returns the manifest path for label under a stanza's
// backup directory, e.g. "backup/main/20240102-030405F/backup.manifest".
func ManifestPath(stanza, label string) string {
	return "backup/" + stanza + "/" + label + "/backup.manifest"
}

// BackupInfoPath returns the backup.info registry path for a stanza.
func BackupInfoPath(stanza string) string {
	return "backup/" + stanza + "/backup.info"
}

// ArchiveInfoPath returns the archive.info registry path for a stanza.
func ArchiveInfoPath(stanza string) string {
	return "archive/" + stanza + "/archive.info"
}

// LoadFileReconstruct rebuilds [backup:current] from the actual backup
// directories under backup/<stanza>/, per spec.md §4.2: drop entries
// whose manifest is missing or fails checksum, keep the rest. It
// returns the reconstructed BackupInfo and whether the result differs
// from loaded (the caller logs a warning and re-saves when it does).
func LoadFileReconstruct(driver storage.Driver, stanza string, loaded *BackupInfo) (*BackupInfo, bool, error) {
	entries, err := driver.List("backup/"+stanza, "", storage.InfoLevelBasic)
	if err != nil {
		return nil, false, errors.Annotatef(err, "list backup directories for stanza %q", stanza)
	}

	reconstructed := &BackupInfo{
		DbID:     loaded.DbID,
		Version:  loaded.Version,
		SystemID: loaded.SystemID,
		History:  loaded.History,
		Current:  make(map[string]BackupRecord),
		Cipher:   loaded.Cipher,
	}

	for _, e := range entries {
		if e.Type != storage.InfoTypeDir || strings.HasPrefix(e.Name, ".") {
			continue
		}
		label := e.Name

		manifestDoc, err := Load(driver, ManifestPath(stanza, label))
		if err != nil {
			logger.Warningf("stanza %q: dropping backup %q from reconstruction: %v", stanza, label, err)
			continue
		}
		manifest, err := ManifestFromDocument(manifestDoc)
		if err != nil {
			logger.Warningf("stanza %q: dropping backup %q from reconstruction: %v", stanza, label, err)
			continue
		}

		if rec, ok := loaded.Current[label]; ok {
			reconstructed.Current[label] = rec
			continue
		}
		// Manifest exists but the loaded registry never recorded it
		// (e.g. the registry was lost after this backup completed);
		// synthesize a minimal record from the manifest itself.
		reconstructed.Current[label] = BackupRecord{
			Label:     manifest.Label,
			Type:      manifest.Type,
			Prior:     manifest.Prior,
			Timestamp: manifest.Timestamp,
			DbID:      manifest.DbID,
		}
	}

	changed := !sameBackupSet(loaded.Current, reconstructed.Current)
	return reconstructed, changed, nil
}

func sameBackupSet(a, b map[string]BackupRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for label := range a {
		if _, ok := b[label]; !ok {
			return false
		}
	}
	return true
}
