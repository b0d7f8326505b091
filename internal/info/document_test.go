package info

import (
	"testing"

	"github.com/juju/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := NewDocument()
	if err := doc.Set("db", "db-id", 1); err != nil {
		t.Fatal(err)
	}
	if err := doc.Set("db", "db-version", "9.4"); err != nil {
		t.Fatal(err)
	}
	if err := doc.Set("db:history", "1", DbHistoryEntry{Version: "9.4", SystemID: 6569239123849665679}); err != nil {
		t.Fatal(err)
	}

	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	var id int
	if ok, err := decoded.Get("db", "db-id", &id); err != nil || !ok || id != 1 {
		t.Fatalf("got id=%d ok=%v err=%v", id, ok, err)
	}
	var entry DbHistoryEntry
	if ok, err := decoded.Get("db:history", "1", &entry); err != nil || !ok {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
	if entry.Version != "9.4" || entry.SystemID != 6569239123849665679 {
		t.Fatalf("got %+v", entry)
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	doc := NewDocument()
	doc.Set("db", "db-id", 1)
	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}

	// Flip one byte in the body, leaving the checksum stale.
	corrupt := append([]byte(nil), data...)
	corrupt[0] ^= 0xFF

	_, err = Decode(corrupt)
	if err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
	if errors.Cause(err) != ErrChecksumMismatch {
		t.Fatalf("got %v, want checksum mismatch", err)
	}
}

func TestDecodeMissingSealFails(t *testing.T) {
	if _, err := Decode([]byte("[db]\ndb-id=1\n")); err == nil {
		t.Fatal("expected an error for a document with no checksum seal")
	}
}
