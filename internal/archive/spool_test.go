package archive

import (
	"testing"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
)

func TestEnqueueListReadRemoveSegment(t *testing.T) {
	spool := posix.New(t.TempDir(), false)

	if err := Enqueue(spool, "main", QueueOut, "000000010000000000000001", []byte("wal-bytes")); err != nil {
		t.Fatal(err)
	}

	segments, err := List(spool, "main", QueueOut)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 || segments[0] != "000000010000000000000001" {
		t.Fatalf("got %v", segments)
	}

	data, err := ReadSegment(spool, "main", QueueOut, segments[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "wal-bytes" {
		t.Fatalf("got %q", data)
	}

	if err := RemoveSegment(spool, "main", QueueOut, segments[0]); err != nil {
		t.Fatal(err)
	}
	segments, err = List(spool, "main", QueueOut)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected empty queue, got %v", segments)
	}
}

func TestListExcludesStatusFiles(t *testing.T) {
	spool := posix.New(t.TempDir(), false)
	if err := Enqueue(spool, "main", QueueOut, "000000010000000000000001", nil); err != nil {
		t.Fatal(err)
	}
	if err := WriteOK(spool, "main", QueueOut, "000000010000000000000002"); err != nil {
		t.Fatal(err)
	}

	segments, err := List(spool, "main", QueueOut)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 || segments[0] != "000000010000000000000001" {
		t.Fatalf("got %v", segments)
	}
}
