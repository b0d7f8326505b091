package backup

import (
	"context"
	"testing"
	"time"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

func TestExpireKeepsOnlyRetainedFullsAndDependents(t *testing.T) {
	pgDataRoot := t.TempDir()
	writePgDataFile(t, pgDataRoot, "base/1/1", "v1")

	repo := posix.New(t.TempDir(), false)
	cfg := Config{Stanza: "main", LockPath: t.TempDir(), Repo: repo, PgData: posix.New(pgDataRoot, false), DbID: 1}
	if err := StanzaCreate(repo, cfg.Stanza, ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}

	cfg.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	oldFull, err := Run(context.Background(), cfg, info.BackupFull)
	if err != nil {
		t.Fatal(err)
	}

	writePgDataFile(t, pgDataRoot, "base/1/1", "v2")
	cfg.Now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	newFull, err := Run(context.Background(), cfg, info.BackupFull)
	if err != nil {
		t.Fatal(err)
	}

	result, err := Expire(cfg, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.ExpiredBackups) != 1 || result.ExpiredBackups[0] != oldFull.Label {
		t.Fatalf("got %v", result.ExpiredBackups)
	}

	doc, err := info.Load(repo, info.BackupInfoPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	backupInfo, err := info.BackupInfoFromDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := backupInfo.Current[oldFull.Label]; ok {
		t.Fatal("expected the old full backup to be removed from backup.info")
	}
	if _, ok := backupInfo.Current[newFull.Label]; !ok {
		t.Fatal("expected the retained full backup to remain")
	}

	if rec, err := repo.Info(RepoFilePath("main", oldFull.Label, ""), 0); err != nil {
		t.Fatal(err)
	} else if rec != nil {
		t.Fatal("expected the expired backup's directory to be removed")
	}
}

func TestExpireRetentionZeroKeepsEverything(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	cfg := Config{Stanza: "main", LockPath: t.TempDir(), Repo: repo, PgData: posix.New(t.TempDir(), false), DbID: 1}
	if err := StanzaCreate(repo, cfg.Stanza, ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), cfg, info.BackupFull); err != nil {
		t.Fatal(err)
	}

	result, err := Expire(cfg, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.ExpiredBackups) != 0 {
		t.Fatalf("got %v", result.ExpiredBackups)
	}
}
