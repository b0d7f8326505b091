package backup

import (
	"testing"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

func TestStanzaCreateWritesBothRegistries(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	if err := StanzaCreate(repo, "main", ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}

	archiveDoc, err := info.Load(repo, info.ArchiveInfoPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	archiveInfo, err := info.ArchiveInfoFromDocument(archiveDoc)
	if err != nil {
		t.Fatal(err)
	}
	if archiveInfo.DbID != 1 || archiveInfo.SystemID != 42 {
		t.Fatalf("got %+v", archiveInfo)
	}
}

func TestStanzaCreateRejectsMismatchedIdentity(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	if err := StanzaCreate(repo, "main", ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}
	if err := StanzaCreate(repo, "main", ClusterIdentity{Version: "17", SystemID: 99}); err == nil {
		t.Fatal("expected a mismatched identity to be rejected")
	}
}

func TestStanzaUpgradeIncrementsDbID(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	if err := StanzaCreate(repo, "main", ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}
	if err := StanzaUpgrade(repo, "main", ClusterIdentity{Version: "17", SystemID: 99}); err != nil {
		t.Fatal(err)
	}

	doc, err := info.Load(repo, info.ArchiveInfoPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	archiveInfo, err := info.ArchiveInfoFromDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	if archiveInfo.DbID != 2 {
		t.Fatalf("got %d", archiveInfo.DbID)
	}
	if _, ok := archiveInfo.History[1]; !ok {
		t.Fatal("expected the original incarnation to remain in history")
	}
}

func TestStanzaDeleteRemovesTrees(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	if err := StanzaCreate(repo, "main", ClusterIdentity{Version: "16", SystemID: 42}); err != nil {
		t.Fatal(err)
	}
	if err := StanzaDelete(repo, t.TempDir(), "main"); err != nil {
		t.Fatal(err)
	}
	if _, err := info.Load(repo, info.ArchiveInfoPath("main")); err == nil {
		t.Fatal("expected archive.info to be gone")
	}
}
