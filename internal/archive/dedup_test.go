package archive

import (
	"testing"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

func TestCheckDedupNoOpOnMatchingContent(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	dir := SegmentDir("main", "9.4", 1, "000000010000000000000001")
	checksum := ChecksumSegment([]byte("wal-bytes"))
	name := SegmentFileName("000000010000000000000001", checksum, "")

	w, err := repo.NewWrite(dir+"/"+name, storage.WriteOptions{CreatePath: true})
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("wal-bytes"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	present, err := CheckDedup(repo, dir, "000000010000000000000001", checksum)
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("expected the matching segment to be reported as already present")
	}
}

func TestCheckDedupFailsOnDifferingContent(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	dir := SegmentDir("main", "9.4", 1, "000000010000000000000001")
	name := SegmentFileName("000000010000000000000001", ChecksumSegment([]byte("old-bytes")), "")

	w, err := repo.NewWrite(dir+"/"+name, storage.WriteOptions{CreatePath: true})
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("old-bytes"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = CheckDedup(repo, dir, "000000010000000000000001", ChecksumSegment([]byte("new-bytes")))
	if errors.Cause(err) != ErrSegmentExists {
		t.Fatalf("got %v, want ErrSegmentExists", err)
	}
}

func TestCheckDedupReportsAbsent(t *testing.T) {
	repo := posix.New(t.TempDir(), false)
	dir := SegmentDir("main", "9.4", 1, "000000010000000000000001")
	present, err := CheckDedup(repo, dir, "000000010000000000000001", "irrelevant")
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected absent segment to report present=false")
	}
}
