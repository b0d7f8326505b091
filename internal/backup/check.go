package backup

import (
	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// CheckResult reports whether a stanza's registries are internally
// consistent.
type CheckResult struct {
	ArchiveDbID    int
	BackupDbID     int
	BackupCount    int
	SystemIDsMatch bool
}

// Check validates that archive.info and backup.info both load (primary
// or copy) and agree on the cluster's current identity, the minimal
// structural precondition every other command relies on before it
// touches a stanza.
func Check(repo storage.Driver, stanza string) (*CheckResult, error) {
	archiveDoc, err := info.Load(repo, info.ArchiveInfoPath(stanza))
	if err != nil {
		return nil, errs.NewUserReported(errs.CodeUserReported, errors.Annotatef(err, "stanza %q archive.info", stanza))
	}
	archiveInfo, err := info.ArchiveInfoFromDocument(archiveDoc)
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}

	backupDoc, err := info.Load(repo, info.BackupInfoPath(stanza))
	if err != nil {
		return nil, errs.NewUserReported(errs.CodeUserReported, errors.Annotatef(err, "stanza %q backup.info", stanza))
	}
	backupInfo, err := info.BackupInfoFromDocument(backupDoc)
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}

	result := &CheckResult{
		ArchiveDbID:    archiveInfo.DbID,
		BackupDbID:     backupInfo.DbID,
		BackupCount:    len(backupInfo.Current),
		SystemIDsMatch: archiveInfo.SystemID == backupInfo.SystemID,
	}
	if !result.SystemIDsMatch {
		return result, errs.NewUserReported(errs.CodeUserReported,
			errors.Errorf("stanza %q: archive.info system-id %d does not match backup.info system-id %d",
				stanza, archiveInfo.SystemID, backupInfo.SystemID))
	}
	return result, nil
}
