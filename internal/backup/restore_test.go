package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

func TestRestoreRebuildsDataDirectoryFromLatestBackup(t *testing.T) {
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
	if _, err := Run(context.Background(), cfg, info.BackupFull); err != nil {
		t.Fatal(err)
	}

	destRoot := t.TempDir()
	cfg.PgData = posix.New(destRoot, false)
	result, err := Restore(context.Background(), cfg, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Files != 1 {
		t.Fatalf("got %d files", result.Files)
	}

	got, err := os.ReadFile(filepath.Join(destRoot, "base/1/1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "table-bytes" {
		t.Fatalf("got %q", got)
	}
}

func TestRestoreFollowsReferenceToAncestorBackup(t *testing.T) {
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
	if _, err := Run(context.Background(), cfg, info.BackupFull); err != nil {
		t.Fatal(err)
	}
	incr, err := Run(context.Background(), cfg, info.BackupIncremental)
	if err != nil {
		t.Fatal(err)
	}

	destRoot := t.TempDir()
	cfg.PgData = posix.New(destRoot, false)
	if _, err := Restore(context.Background(), cfg, incr.Label); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(destRoot, "base/1/1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "table-bytes" {
		t.Fatalf("got %q", got)
	}
}

func TestRestoreRejectsUnknownLabel(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	if err := StanzaCreate(repo, "main", ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Stanza: "main", LockPath: t.TempDir(), Repo: repo, PgData: posix.New(t.TempDir(), false), DbID: 1}
	if _, err := Restore(context.Background(), cfg, "does-not-exist"); err == nil {
		t.Fatal("expected an error for an unknown label")
	}
}
