package backup

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/lock"
	"github.com/qiuwenhuifx/pgbackrest/internal/metrics"
	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

// Config gathers everything a Run needs: the repository and source
// data-directory drivers, the stanza's identity, and (optionally) a
// parallel executor for fanning file copies out to worker processes.
// Executor nil means copy in the current process (CopyLocal).
type Config struct {
	Stanza   string
	LockPath string
	Repo     storage.Driver
	PgData   storage.Driver
	DbID     int
	Executor *protocol.Executor
	Cmd      string // worker command name when Executor is set
	Metrics  *metrics.Collector
	Now      func() time.Time

	// ArchiveStart/ArchiveStop are the WAL segment names bounding this
	// backup's consistency range, as reported by the PostgreSQL
	// start-backup/stop-backup calls — an external collaborator per
	// spec.md §1, not reimplemented here.
	ArchiveStart string
	ArchiveStop  string
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Result summarizes a completed backup for the caller (the `backup`
// command's own success log line and stats).
type Result struct {
	Label         string
	Type          info.BackupType
	SizeBytes     int64
	RepoSizeBytes int64
}

// Run executes a full/differential/incremental backup per spec.md §3's
// "Backup created by `backup`" lifecycle: resolve the plan, build the
// manifest against the source data directory, copy new/changed files
// into the repository, then commit — manifest written last, followed
// by the updated backup.info — so a crash mid-backup never leaves a
// backup.info entry with no corresponding manifest.
func Run(ctx context.Context, cfg Config, requested info.BackupType) (*Result, error) {
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

	plan, err := Resolve(requested, backupInfo.Current)
	if err != nil {
		return nil, errs.NewUserReported(errs.CodeUserReported, errors.Trace(err))
	}

	label, err := NewLabel(plan.Type, cfg.now(), plan.FullLabel)
	if err != nil {
		return nil, errs.NewFatal(errs.CodeAssertion, errors.Trace(err))
	}

	priorManifests, err := loadManifests(cfg.Repo, cfg.Stanza, plan.References)
	if err != nil {
		return nil, errors.Trace(err)
	}

	manifest, err := BuildManifest(cfg.PgData, label, plan, cfg.DbID, priorManifests)
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFileMissing, errors.Trace(err))
	}
	manifest.Prior = plan.Prior
	manifest.ArchiveStart = cfg.ArchiveStart
	manifest.ArchiveStop = cfg.ArchiveStop

	toCopy := FilesToCopy(manifest)
	var results map[string]copyResult
	if cfg.Executor != nil {
		results, err = CopyParallel(ctx, cfg.Executor, cfg.Cmd, cfg.Stanza, label, toCopy)
	} else {
		results = CopyLocal(cfg.PgData, cfg.Repo, cfg.Stanza, label, toCopy)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	var repoSize int64
	for path, res := range results {
		if res.Err != nil {
			return nil, errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(res.Err, "copy %q", path))
		}
		repoSize += res.RepoSizeBytes
	}

	var logicalSize int64
	for _, e := range manifest.Files {
		logicalSize += e.Size
	}

	manifestDoc, err := manifest.ToDocument()
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}
	if err := info.Save(cfg.Repo, info.ManifestPath(cfg.Stanza, label), manifestDoc); err != nil {
		return nil, errs.NewFatal(errs.CodeFileMissing, errors.Trace(err))
	}

	backupInfo.Current[label] = info.BackupRecord{
		Label:         label,
		Type:          plan.Type,
		Prior:         plan.Prior,
		Timestamp:     cfg.now(),
		SizeBytes:     logicalSize,
		RepoSizeBytes: repoSize,
		DbID:          cfg.DbID,
		ArchiveStart:  cfg.ArchiveStart,
		ArchiveStop:   cfg.ArchiveStop,
	}
	if err := saveBackupInfo(cfg.Repo, cfg.Stanza, backupInfo); err != nil {
		return nil, errors.Trace(err)
	}

	if cfg.Metrics != nil {
		cfg.Metrics.BackupBytes(string(plan.Type), float64(repoSize))
	}
	logger.Infof("stanza %q: backup %q (%s) complete, %d files, %d bytes", cfg.Stanza, label, plan.Type, len(manifest.Files), repoSize)

	return &Result{Label: label, Type: plan.Type, SizeBytes: logicalSize, RepoSizeBytes: repoSize}, nil
}

func loadBackupInfo(repo storage.Driver, stanza string, dbID int) (*info.BackupInfo, error) {
	doc, err := info.Load(repo, info.BackupInfoPath(stanza))
	if err != nil {
		// info.Load doesn't distinguish "never created" from "both copies
		// corrupt"; either way the operator needs to run stanza-create or
		// repair the repository before any other command can proceed.
		return nil, errs.NewUserReported(errs.CodeUserReported,
			errors.Annotatef(err, "stanza %q has not been created or its backup.info is unreadable", stanza))
	}
	b, err := info.BackupInfoFromDocument(doc)
	if err != nil {
		return nil, errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}
	if b.DbID != dbID {
		return nil, errs.NewUserReported(errs.CodeUserReported,
			errors.Errorf("stanza %q's current db-id is %d, backup requested for db-id %d", stanza, b.DbID, dbID))
	}
	return b, nil
}

func saveBackupInfo(repo storage.Driver, stanza string, b *info.BackupInfo) error {
	doc, err := b.ToDocument()
	if err != nil {
		return errs.NewFatal(errs.CodeFormat, errors.Trace(err))
	}
	if err := info.Save(repo, info.BackupInfoPath(stanza), doc); err != nil {
		return errs.NewFatal(errs.CodeFileMissing, errors.Trace(err))
	}
	return nil
}

// loadManifests reads the manifest for every label in labels, keyed by
// label, so BuildManifest can compare against the full ancestor chain.
func loadManifests(repo storage.Driver, stanza string, labels []string) (map[string]*info.Manifest, error) {
	out := make(map[string]*info.Manifest, len(labels))
	for _, label := range labels {
		doc, err := info.Load(repo, info.ManifestPath(stanza, label))
		if err != nil {
			return nil, errs.NewFatal(errs.CodeFileMissing, errors.Annotatef(err, "load ancestor manifest %q", label))
		}
		m, err := info.ManifestFromDocument(doc)
		if err != nil {
			return nil, errs.NewFatal(errs.CodeFormat, errors.Annotatef(err, "decode ancestor manifest %q", label))
		}
		out[label] = m
	}
	return out, nil
}
