package backup

import (
	"testing"
	"time"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
)

func TestNewLabelFull(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	label, err := NewLabel(info.BackupFull, start, "")
	if err != nil {
		t.Fatal(err)
	}
	if label != "20240102-030405F" {
		t.Fatalf("got %q", label)
	}
}

func TestNewLabelDifferentialChainsToFull(t *testing.T) {
	start := time.Date(2024, 1, 3, 4, 5, 6, 0, time.UTC)
	label, err := NewLabel(info.BackupDifferential, start, "20240102-030405F")
	if err != nil {
		t.Fatal(err)
	}
	if label != "20240102-030405F_20240103-040506D" {
		t.Fatalf("got %q", label)
	}
}

func TestNewLabelRequiresFullAncestorForNonFull(t *testing.T) {
	if _, err := NewLabel(info.BackupIncremental, time.Now(), ""); err == nil {
		t.Fatal("expected an error without a full ancestor label")
	}
}

func TestParseLabelType(t *testing.T) {
	cases := map[string]info.BackupType{
		"20240102-030405F":                  info.BackupFull,
		"20240102-030405F_20240103-040506D": info.BackupDifferential,
		"20240102-030405F_20240103-040506I": info.BackupIncremental,
	}
	for label, want := range cases {
		got, err := ParseLabelType(label)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("%q: got %v, want %v", label, got, want)
		}
	}
}

func TestFullAncestor(t *testing.T) {
	if got := FullAncestor("20240102-030405F_20240103-040506I"); got != "20240102-030405F" {
		t.Fatalf("got %q", got)
	}
	if got := FullAncestor("20240102-030405F"); got != "20240102-030405F" {
		t.Fatalf("got %q", got)
	}
}
