package backup

import (
	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/lock"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// ClusterIdentity is the subset of the PostgreSQL control file spec.md
// §1 names as an external collaborator's output: version and system
// identifier.
type ClusterIdentity struct {
	Version  string
	SystemID uint64
}

// StanzaCreate writes archive.info and backup.info atomically for a
// new stanza, per spec.md §3's "Stanza created by stanza-create
// (writes info files atomically)". It refuses to overwrite an existing
// stanza whose identity differs.
func StanzaCreate(repo storage.Driver, stanza string, identity ClusterIdentity) error {
	if existing, err := info.Load(repo, info.ArchiveInfoPath(stanza)); err == nil {
		archiveInfo, decErr := info.ArchiveInfoFromDocument(existing)
		if decErr == nil && (archiveInfo.Version != identity.Version || archiveInfo.SystemID != identity.SystemID) {
			return errs.NewUserReported(errs.CodeUserReported,
				errors.Errorf("stanza %q already exists for a different cluster (version %s, system-id %d)",
					stanza, archiveInfo.Version, archiveInfo.SystemID))
		}
	}

	archiveInfo := info.NewArchiveInfo(1, identity.Version, identity.SystemID)
	archiveDoc, err := archiveInfo.ToDocument()
	if err != nil {
		return errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}
	if err := info.Save(repo, info.ArchiveInfoPath(stanza), archiveDoc); err != nil {
		return errs.NewFatal(errs.CodeFileMissing, errors.Trace(err))
	}

	backupInfo := info.NewBackupInfo(1, identity.Version, identity.SystemID)
	backupDoc, err := backupInfo.ToDocument()
	if err != nil {
		return errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}
	if err := info.Save(repo, info.BackupInfoPath(stanza), backupDoc); err != nil {
		return errs.NewFatal(errs.CodeFileMissing, errors.Trace(err))
	}

	logger.Infof("stanza %q created for cluster version %s, system-id %d", stanza, identity.Version, identity.SystemID)
	return nil
}

// StanzaUpgrade records a new PostgreSQL incarnation for stanza: a new
// dbId, one greater than the current maximum, per spec.md §3's "dbIds
// are dense and strictly increasing" invariant.
func StanzaUpgrade(repo storage.Driver, stanza string, identity ClusterIdentity) error {
	archiveDoc, err := info.Load(repo, info.ArchiveInfoPath(stanza))
	if err != nil {
		return errs.NewUserReported(errs.CodeUserReported, errors.Annotatef(err, "stanza %q", stanza))
	}
	archiveInfo, err := info.ArchiveInfoFromDocument(archiveDoc)
	if err != nil {
		return errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}

	backupDoc, err := info.Load(repo, info.BackupInfoPath(stanza))
	if err != nil {
		return errs.NewUserReported(errs.CodeUserReported, errors.Annotatef(err, "stanza %q", stanza))
	}
	backupInfo, err := info.BackupInfoFromDocument(backupDoc)
	if err != nil {
		return errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}

	newDbID := archiveInfo.DbID + 1
	archiveInfo.DbID = newDbID
	archiveInfo.Version = identity.Version
	archiveInfo.SystemID = identity.SystemID
	archiveInfo.History[newDbID] = info.DbHistoryEntry{Version: identity.Version, SystemID: identity.SystemID}

	backupInfo.DbID = newDbID
	backupInfo.Version = identity.Version
	backupInfo.SystemID = identity.SystemID
	backupInfo.History[newDbID] = info.DbHistoryEntry{Version: identity.Version, SystemID: identity.SystemID}

	newArchiveDoc, err := archiveInfo.ToDocument()
	if err != nil {
		return errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}
	if err := info.Save(repo, info.ArchiveInfoPath(stanza), newArchiveDoc); err != nil {
		return errs.NewFatal(errs.CodeFileMissing, errors.Trace(err))
	}

	newBackupDoc, err := backupInfo.ToDocument()
	if err != nil {
		return errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}
	if err := info.Save(repo, info.BackupInfoPath(stanza), newBackupDoc); err != nil {
		return errs.NewFatal(errs.CodeFileMissing, errors.Trace(err))
	}

	logger.Infof("stanza %q upgraded to db-id %d (version %s, system-id %d)", stanza, newDbID, identity.Version, identity.SystemID)
	return nil
}

// StanzaDelete removes a stanza's entire archive and backup trees,
// after confirming both the archive and backup locks are free, per
// spec.md §3's "destroyed by stanza-delete after confirming lock free".
func StanzaDelete(repo storage.Driver, lockPath, stanza string) error {
	for _, kind := range []lock.Kind{lock.KindArchive, lock.KindBackup} {
		l, err := lock.Acquire(lockPath, stanza, kind)
		if err != nil {
			if held, ok := err.(*lock.HeldError); ok {
				return errs.NewUserReported(errs.CodeLockAcquire, errors.Trace(held))
			}
			return errs.NewFatal(errs.CodeAssertion, errors.Trace(err))
		}
		defer l.Release()
	}

	if err := repo.PathRemove("archive/"+stanza, true); err != nil {
		return errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(err, "remove archive tree for stanza %q", stanza))
	}
	if err := repo.PathRemove("backup/"+stanza, true); err != nil {
		return errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(err, "remove backup tree for stanza %q", stanza))
	}

	logger.Infof("stanza %q deleted", stanza)
	return nil
}
