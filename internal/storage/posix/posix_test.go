package posix

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
)

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	d := New(root, false)

	w, err := d.NewWrite("dir/file.txt", storage.WriteOptions{Atomic: true, CreatePath: true, Mode: 0640})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(root, "dir/file.txt.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected the .tmp sibling to be gone after atomic close")
	}

	r, err := d.NewRead("dir/file.txt", storage.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
}

func TestInfoMissingReturnsNilNil(t *testing.T) {
	d := New(t.TempDir(), false)
	rec, err := d.Info("does/not/exist", storage.InfoLevelBasic)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for a missing path")
	}
}

func TestReadMissingIgnoreMissing(t *testing.T) {
	d := New(t.TempDir(), false)
	r, err := d.NewRead("missing", storage.ReadOptions{IgnoreMissing: true})
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatalf("expected a nil endpoint for a missing path with IgnoreMissing")
	}
}

func TestListAndExpression(t *testing.T) {
	root := t.TempDir()
	d := New(root, false)
	for _, name := range []string{"a.txt", "b.txt", "c.dat"} {
		w, err := d.NewWrite(name, storage.WriteOptions{})
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte("x"))
		w.Close()
	}

	entries, err := d.List("", "*.txt", storage.InfoLevelBasic)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestPathCreateRemove(t *testing.T) {
	d := New(t.TempDir(), false)
	if err := d.PathCreate("a/b/c", 0750, false, true); err != nil {
		t.Fatal(err)
	}
	rec, err := d.Info("a/b/c", storage.InfoLevelBasic)
	if err != nil || rec == nil || rec.Type != storage.InfoTypeDir {
		t.Fatalf("expected a directory record, got %v, %v", rec, err)
	}
	if err := d.PathRemove("a", true); err != nil {
		t.Fatal(err)
	}
	rec, err = d.Info("a", storage.InfoLevelBasic)
	if err != nil || rec != nil {
		t.Fatalf("expected path a to be gone")
	}
}

func TestMove(t *testing.T) {
	d := New(t.TempDir(), false)
	w, err := d.NewWrite("src.txt", storage.WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("data"))
	w.Close()

	if err := d.Move("src.txt", "dst/dst.txt"); err != nil {
		t.Fatal(err)
	}
	if rec, _ := d.Info("src.txt", storage.InfoLevelExists); rec != nil {
		t.Fatalf("expected src.txt to be gone")
	}
	rec, err := d.Info("dst/dst.txt", storage.InfoLevelBasic)
	if err != nil || rec == nil || rec.Size != 4 {
		t.Fatalf("expected dst/dst.txt with size 4, got %v, %v", rec, err)
	}
}
