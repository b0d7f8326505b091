package info

import (
	"testing"
	"time"
)

func TestManifestEncodeDecodeRoundTrip(t *testing.T) {
	m := NewManifest("20240102-030405F", BackupFull, 1)
	m.Timestamp = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m.Files["base/1/16384"] = FileEntry{Size: 8192, Checksum: "abc123", Mode: 0600}
	m.Paths["base/1"] = PathEntry{Mode: 0700}
	m.Links["pg_wal"] = LinkEntry{Destination: "/archive/wal"}
	m.Option["compress-type"] = "gz"

	doc, err := m.ToDocument()
	if err != nil {
		t.Fatal(err)
	}
	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	decodedDoc, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := ManifestFromDocument(decodedDoc)
	if err != nil {
		t.Fatal(err)
	}

	if decoded.Label != m.Label || decoded.Type != m.Type {
		t.Fatalf("got %+v", decoded)
	}
	if entry, ok := decoded.Files["base/1/16384"]; !ok || entry.Checksum != "abc123" || entry.Size != 8192 {
		t.Fatalf("got file entry %+v", entry)
	}
	if decoded.Links["pg_wal"].Destination != "/archive/wal" {
		t.Fatalf("got links %+v", decoded.Links)
	}
	if decoded.Option["compress-type"] != "gz" {
		t.Fatalf("got option %+v", decoded.Option)
	}
}

func TestValidateReferencesDetectsMismatch(t *testing.T) {
	ancestor := NewManifest("base", BackupFull, 1)
	ancestor.Files["base/1/1"] = FileEntry{Size: 100, Checksum: "aaa"}

	child := NewManifest("child", BackupIncremental, 1)
	child.Files["base/1/1"] = FileEntry{Size: 100, Checksum: "bbb", Reference: "base"}

	current := map[string]BackupRecord{"base": {Label: "base"}}
	ancestors := map[string]*Manifest{"base": ancestor}

	if err := child.ValidateReferences(current, ancestors); err == nil {
		t.Fatal("expected a checksum mismatch to be caught")
	}
}

func TestValidateReferencesAcceptsMatchingAncestor(t *testing.T) {
	ancestor := NewManifest("base", BackupFull, 1)
	ancestor.Files["base/1/1"] = FileEntry{Size: 100, Checksum: "aaa"}

	child := NewManifest("child", BackupIncremental, 1)
	child.Files["base/1/1"] = FileEntry{Size: 100, Checksum: "aaa", Reference: "base"}

	current := map[string]BackupRecord{"base": {Label: "base"}}
	ancestors := map[string]*Manifest{"base": ancestor}

	if err := child.ValidateReferences(current, ancestors); err != nil {
		t.Fatalf("expected matching ancestor to validate: %v", err)
	}
}
