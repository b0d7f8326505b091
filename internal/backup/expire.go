package backup

import (
	"sort"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/lock"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// ExpireResult reports what an Expire pass removed.
type ExpireResult struct {
	ExpiredBackups  []string
	ExpiredSegments []string
}

// Expire applies a full-backup retention count per spec.md §3's
// "Backup created by `backup`... removed by `expire` per retention
// policy": the retentionFull most recent full backups are kept, along
// with every differential/incremental backup whose chain terminates at
// a retained full; everything else — its manifest, its repository
// directory, and its backup.info entry — is removed. WAL bucket
// directories that sort entirely before the oldest retained backup's
// ArchiveStart are then removed too (see expireSegmentsBefore), per "Archive segment created by archive-push;
// removed by expire when no surviving backup references its LSN
// range."
func Expire(cfg Config, retentionFull int) (*ExpireResult, error) {
	l, err := lock.Acquire(cfg.LockPath, cfg.Stanza, lock.KindBackup)
	if err != nil {
		if held, ok := err.(*lock.HeldError); ok {
			return nil, errs.NewUserReported(errs.CodeLockAcquire, errors.Trace(held))
		}
		return nil, errs.NewFatal(errs.CodeAssertion, errors.Trace(err))
	}
	defer l.Release()

	backupInfo, err := loadBackupInfo(cfg.Repo, cfg.Stanza, cfg.DbID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	retained, expired := partitionByRetention(backupInfo.Current, retentionFull)

	result := &ExpireResult{}
	for _, label := range expired {
		if err := cfg.Repo.PathRemove(RepoFilePath(cfg.Stanza, label, ""), true); err != nil {
			return nil, errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(err, "remove expired backup %q", label))
		}
		delete(backupInfo.Current, label)
		result.ExpiredBackups = append(result.ExpiredBackups, label)
	}
	sort.Strings(result.ExpiredBackups)

	if err := saveBackupInfo(cfg.Repo, cfg.Stanza, backupInfo); err != nil {
		return nil, errors.Trace(err)
	}

	oldestStart := oldestArchiveStart(retained, backupInfo.Current)
	if oldestStart != "" {
		removed, err := expireSegmentsBefore(cfg.Repo, cfg.Stanza, oldestStart)
		if err != nil {
			return nil, errs.NewFatal(errs.CodeFileMissing, errors.Trace(err))
		}
		result.ExpiredSegments = removed
	}

	logger.Infof("stanza %q: expire removed %d backups and %d WAL bucket directories", cfg.Stanza, len(result.ExpiredBackups), len(result.ExpiredSegments))
	return result, nil
}

// partitionByRetention splits current into the labels to retain (the
// retentionFull most recent full backups plus every dependent
// differential/incremental) and the labels to expire (everything
// else). retentionFull <= 0 retains everything.
func partitionByRetention(current map[string]info.BackupRecord, retentionFull int) (retained, expired []string) {
	if retentionFull <= 0 {
		for label := range current {
			retained = append(retained, label)
		}
		return retained, nil
	}

	var fulls []string
	for label, rec := range current {
		if rec.Type == info.BackupFull {
			fulls = append(fulls, label)
		}
	}
	sort.Strings(fulls) // labels are chronologically sortable by construction
	if len(fulls) <= retentionFull {
		for label := range current {
			retained = append(retained, label)
		}
		return retained, nil
	}

	keepFulls := make(map[string]bool)
	for _, f := range fulls[len(fulls)-retentionFull:] {
		keepFulls[f] = true
	}

	retainedSet := make(map[string]bool)
	for label := range current {
		if keepFulls[FullAncestor(label)] {
			retainedSet[label] = true
			retained = append(retained, label)
		}
	}
	for label := range current {
		if !retainedSet[label] {
			expired = append(expired, label)
		}
	}
	return retained, expired
}

func oldestArchiveStart(retained []string, current map[string]info.BackupRecord) string {
	var oldest string
	for _, label := range retained {
		start := current[label].ArchiveStart
		if start == "" {
			continue
		}
		if oldest == "" || start < oldest {
			oldest = start
		}
	}
	return oldest
}

// expireSegmentsBefore removes, in every db-incarnation directory under
// archive/<stanza>/, each WAL bucket directory (named for the first 16
// hex characters of the segments it holds) whose name sorts before
// floor's bucket, and returns the removed bucket names. WAL segment
// names are fixed-width hex (timeline+log+segno) and sort in WAL order,
// so every segment in such a bucket precedes floor; segments older than
// floor that share floor's own bucket are kept.
func expireSegmentsBefore(repo storage.Driver, stanza, floor string) ([]string, error) {
	base := "archive/" + stanza
	incarnations, err := repo.List(base, "", storage.InfoLevelBasic)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "list %q", base)
	}

	var removed []string
	for _, inc := range incarnations {
		if inc.Type != storage.InfoTypeDir {
			continue
		}
		dir := base + "/" + inc.Name
		buckets, err := repo.List(dir, "", storage.InfoLevelBasic)
		if err != nil {
			return nil, errors.Annotatef(err, "list %q", dir)
		}
		for _, bucket := range buckets {
			if bucket.Type != storage.InfoTypeDir || bucket.Name >= floor[:16] {
				continue
			}
			if err := repo.PathRemove(dir+"/"+bucket.Name, true); err != nil {
				return nil, errors.Annotatef(err, "remove expired archive bucket %q", bucket.Name)
			}
			removed = append(removed, bucket.Name)
		}
	}
	sort.Strings(removed)
	return removed, nil
}
