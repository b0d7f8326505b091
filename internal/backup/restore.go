package backup

import (
	"context"
	"io"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/filter"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/lock"
	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	Label string
	Files int
}

// Restore rebuilds the cluster data directory at cfg.PgData from the
// backup named label (or the most recent backup if label is empty),
// per spec.md §3: each file is fetched from whichever backup in the
// reference chain actually holds its bytes (entry.Reference, or label
// itself when unset), and its checksum is verified against the
// manifest on the way in.
func Restore(ctx context.Context, cfg Config, label string) (*RestoreResult, error) {
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
	if label == "" {
		label = latestLabelOverall(backupInfo.Current)
		if label == "" {
			return nil, errs.NewUserReported(errs.CodeUserReported, errors.Errorf("stanza %q has no backups to restore", cfg.Stanza))
		}
	}
	if _, ok := backupInfo.Current[label]; !ok {
		return nil, errs.NewUserReported(errs.CodeUserReported, errors.Errorf("stanza %q has no backup labeled %q", cfg.Stanza, label))
	}

	doc, err := info.Load(cfg.Repo, info.ManifestPath(cfg.Stanza, label))
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(err, "load manifest %q", label))
	}
	manifest, err := info.ManifestFromDocument(doc)
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFormat, errors.Annotatef(err, "decode manifest %q", label))
	}

	for path, entry := range manifest.Paths {
		if err := cfg.PgData.PathCreate(path, orDefaultMode(entry.Mode), true, true); err != nil {
			return nil, errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(err, "create directory %q", path))
		}
	}

	var results map[string]restoreOutcome
	if cfg.Executor != nil {
		results, err = restoreParallel(ctx, cfg.Executor, cfg.Cmd, cfg.Stanza, manifest)
	} else {
		results = restoreLocal(cfg.Repo, cfg.PgData, cfg.Stanza, manifest)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	for path, res := range results {
		if res.Err != nil {
			return nil, errs.NewFatal(errs.CodeFormat, errors.Annotatef(res.Err, "restore %q", path))
		}
	}

	logger.Infof("stanza %q: restore of backup %q complete, %d files", cfg.Stanza, label, len(manifest.Files))
	return &RestoreResult{Label: label, Files: len(manifest.Files)}, nil
}

func orDefaultMode(mode uint32) uint32 {
	if mode == 0 {
		return 0750
	}
	return mode
}

type restoreOutcome struct {
	Err error
}

// restoreLocal fetches every file in manifest from the repository and
// writes it into pgData, in the current process.
func restoreLocal(repo, pgData storage.Driver, stanza string, manifest *info.Manifest) map[string]restoreOutcome {
	results := make(map[string]restoreOutcome, len(manifest.Files))
	for path, entry := range manifest.Files {
		results[path] = restoreOutcome{Err: restoreOneFile(repo, pgData, stanza, manifest.Label, path, entry)}
	}
	return results
}

func restoreOneFile(repo, pgData storage.Driver, stanza, label, relPath string, entry info.FileEntry) error {
	sourceLabel := entry.Reference
	if sourceLabel == "" {
		sourceLabel = label
	}

	r, err := repo.NewRead(RepoFilePath(stanza, sourceLabel, relPath), storage.ReadOptions{})
	if err != nil {
		return errors.Annotatef(err, "open repo copy of %q", relPath)
	}
	defer r.Close()

	w, err := pgData.NewWrite(relPath, storage.WriteOptions{Atomic: true, CreatePath: true, Mode: entry.Mode})
	if err != nil {
		return errors.Annotatef(err, "open destination %q", relPath)
	}

	hash := filter.NewSHA1Filter()
	buf := make([]byte, 64*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			hash.Process(buf[:n])
			if _, werr := w.Write(buf[:n]); werr != nil {
				w.Close()
				return errors.Annotatef(werr, "write %q", relPath)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			w.Close()
			return errors.Annotatef(rerr, "read repo copy of %q", relPath)
		}
	}
	if err := w.Close(); err != nil {
		return errors.Annotatef(err, "close %q", relPath)
	}

	hash.Flush()
	if entry.Checksum != "" && hash.Result().(string) != entry.Checksum {
		return errors.Errorf("checksum mismatch restoring %q: manifest has %s, repository copy has %s", relPath, entry.Checksum, hash.Result())
	}
	return nil
}

// restoreParallel dispatches one job per file across executor's worker
// pool, symmetric with CopyParallel's backup-direction counterpart.
func restoreParallel(ctx context.Context, executor *protocol.Executor, cmd, stanza string, manifest *info.Manifest) (map[string]restoreOutcome, error) {
	results := make(map[string]restoreOutcome, len(manifest.Files))

	jobs := make([]protocol.Job, 0, len(manifest.Files))
	for path, entry := range manifest.Files {
		sourceLabel := entry.Reference
		if sourceLabel == "" {
			sourceLabel = manifest.Label
		}
		jobs = append(jobs, protocol.Job{
			Key:       path,
			Cmd:       cmd,
			Parameter: []interface{}{stanza, sourceLabel, path, entry.Checksum},
		})
	}

	err := executor.Run(ctx, jobs, func(c protocol.Completion) {
		results[c.Key] = restoreOutcome{Err: c.Err}
	})
	if err != nil {
		return results, errors.Trace(err)
	}
	return results, nil
}
