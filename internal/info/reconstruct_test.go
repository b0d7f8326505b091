package info

import (
	"testing"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

func writeManifest(t *testing.T, driver storage.Driver, stanza, label string) {
	t.Helper()
	m := NewManifest(label, BackupFull, 1)
	doc, err := m.ToDocument()
	if err != nil {
		t.Fatal(err)
	}
	if err := Save(driver, ManifestPath(stanza, label), doc); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFileReconstructDropsBackupsMissingManifest(t *testing.T) {
	driver := posix.New(t.TempDir(), false)
	writeManifest(t, driver, "main", "20240101-000000F")
	// Second backup directory exists but never got a manifest written.
	if err := driver.PathCreate("backup/main/20240102-000000F", 0750, true, true); err != nil {
		t.Fatal(err)
	}

	loaded := NewBackupInfo(1, "9.4", 1)
	loaded.Current["20240101-000000F"] = BackupRecord{Label: "20240101-000000F"}
	loaded.Current["20240102-000000F"] = BackupRecord{Label: "20240102-000000F"}

	reconstructed, changed, err := LoadFileReconstruct(driver, "main", loaded)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected the reconstructed set to differ from loaded")
	}
	if _, ok := reconstructed.Current["20240101-000000F"]; !ok {
		t.Fatal("expected the backup with a valid manifest to survive")
	}
	if _, ok := reconstructed.Current["20240102-000000F"]; ok {
		t.Fatal("expected the backup missing a manifest to be dropped")
	}
}

func TestLoadFileReconstructAddsRecoverableBackup(t *testing.T) {
	driver := posix.New(t.TempDir(), false)
	writeManifest(t, driver, "main", "20240101-000000F")

	loaded := NewBackupInfo(1, "9.4", 1) // registry lost track of the backup entirely

	reconstructed, changed, err := LoadFileReconstruct(driver, "main", loaded)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected reconstruction to add the recovered backup")
	}
	if _, ok := reconstructed.Current["20240101-000000F"]; !ok {
		t.Fatal("expected the recoverable backup to be added back")
	}
}
