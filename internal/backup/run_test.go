package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

func writePgDataFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0640); err != nil {
		t.Fatal(err)
	}
}

func TestRunFullBackupWritesManifestAndRegistry(t *testing.T) {
	pgDataRoot := t.TempDir()
	writePgDataFile(t, pgDataRoot, "base/1/1", "table-bytes")
	writePgDataFile(t, pgDataRoot, "PG_VERSION", "16")

	repo := posix.New(t.TempDir(), false)
	cfg := Config{
		Stanza:   "main",
		LockPath: t.TempDir(),
		Repo:     repo,
		PgData:   posix.New(pgDataRoot, false),
		DbID:     1,
		Now:      func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	if err := StanzaCreate(repo, cfg.Stanza, ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}

	result, err := Run(context.Background(), cfg, info.BackupFull)
	if err != nil {
		t.Fatal(err)
	}
	if result.Label != "20240102-030405F" {
		t.Fatalf("got %q", result.Label)
	}
	if result.SizeBytes == 0 {
		t.Fatal("expected a nonzero logical size")
	}

	doc, err := info.Load(repo, info.BackupInfoPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	backupInfo, err := info.BackupInfoFromDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := backupInfo.Current[result.Label]; !ok {
		t.Fatalf("expected backup.info to record %q", result.Label)
	}

	manifestDoc, err := info.Load(repo, info.ManifestPath("main", result.Label))
	if err != nil {
		t.Fatal(err)
	}
	manifest, err := info.ManifestFromDocument(manifestDoc)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := manifest.Files["base/1/1"]; !ok {
		t.Fatalf("expected manifest to contain base/1/1, got %+v", manifest.Files)
	}
}

func TestRunIncrementalReusesUnchangedFiles(t *testing.T) {
	pgDataRoot := t.TempDir()
	writePgDataFile(t, pgDataRoot, "base/1/1", "table-bytes")

	repo := posix.New(t.TempDir(), false)
	cfg := Config{
		Stanza:   "main",
		LockPath: t.TempDir(),
		Repo:     repo,
		PgData:   posix.New(pgDataRoot, false),
		DbID:     1,
	}
	if err := StanzaCreate(repo, cfg.Stanza, ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}

	cfg.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	full, err := Run(context.Background(), cfg, info.BackupFull)
	if err != nil {
		t.Fatal(err)
	}

	cfg.Now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	incr, err := Run(context.Background(), cfg, info.BackupIncremental)
	if err != nil {
		t.Fatal(err)
	}
	if incr.Type != info.BackupIncremental {
		t.Fatalf("got %v", incr.Type)
	}

	manifestDoc, err := info.Load(repo, info.ManifestPath("main", incr.Label))
	if err != nil {
		t.Fatal(err)
	}
	manifest, err := info.ManifestFromDocument(manifestDoc)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := manifest.Files["base/1/1"]
	if !ok {
		t.Fatal("expected the unchanged file to still be listed")
	}
	if entry.Reference != full.Label {
		t.Fatalf("expected reference to %q, got %q", full.Label, entry.Reference)
	}

	rec, err := repo.Info(RepoFilePath("main", incr.Label, "base/1/1"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatal("expected the unchanged file not to be re-copied into the incremental backup's own directory")
	}
}
