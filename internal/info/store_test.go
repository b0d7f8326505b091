package info

import (
	"testing"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

func TestSaveLoadArchiveInfoRoundTrip(t *testing.T) {
	driver := posix.New(t.TempDir(), false)
	archive := NewArchiveInfo(1, "9.4", 6569239123849665679)

	doc, err := archive.ToDocument()
	if err != nil {
		t.Fatal(err)
	}
	if err := Save(driver, "archive.info", doc); err != nil {
		t.Fatal(err)
	}

	loadedDoc, err := Load(driver, "archive.info")
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := ArchiveInfoFromDocument(loadedDoc)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.DbID != 1 || loaded.Version != "9.4" || loaded.SystemID != 6569239123849665679 {
		t.Fatalf("got %+v", loaded)
	}
	if entry, ok := loaded.History[1]; !ok || entry.Version != "9.4" {
		t.Fatalf("got history %+v", loaded.History)
	}
}

func TestLoadFallsBackToCopyOnCorruption(t *testing.T) {
	driver := posix.New(t.TempDir(), false)
	archive := NewArchiveInfo(1, "9.4", 6569239123849665679)
	doc, err := archive.ToDocument()
	if err != nil {
		t.Fatal(err)
	}
	if err := Save(driver, "archive.info", doc); err != nil {
		t.Fatal(err)
	}

	// Corrupt the primary in place, leaving the copy intact.
	w, err := driver.NewWrite("archive.info", storage.WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("garbage, not a valid document"))
	w.Close()

	loadedDoc, err := Load(driver, "archive.info")
	if err != nil {
		t.Fatalf("expected load to fall back to the .copy: %v", err)
	}
	loaded, err := ArchiveInfoFromDocument(loadedDoc)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.DbID != 1 {
		t.Fatalf("got %+v", loaded)
	}
}

func TestLoadFailsWhenBothCopiesAreCorrupt(t *testing.T) {
	driver := posix.New(t.TempDir(), false)
	doc := NewDocument()
	doc.Set("db", "db-id", 1)
	if err := Save(driver, "archive.info", doc); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"archive.info", "archive.info.copy"} {
		w, err := driver.NewWrite(path, storage.WriteOptions{})
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte("not a valid document"))
		w.Close()
	}

	if _, err := Load(driver, "archive.info"); err == nil {
		t.Fatal("expected load to fail when both copies are corrupt")
	}
}
