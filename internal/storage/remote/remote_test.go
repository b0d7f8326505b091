package remote

import (
	"io"
	"testing"

	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

// wireInProcess connects a Driver to a Server fronting a posix.Driver
// over an in-memory pipe pair, exercising the same protocol.Client/
// Server path Dial would use over SSH without an actual network or
// subprocess.
func wireInProcess(t *testing.T) *Driver {
	t.Helper()
	local := posix.New(t.TempDir(), false)

	toWorker := newTestPipe()
	toMaster := newTestPipe()

	srv := protocol.NewServer(nil, toWorker.r, streamio.NewWriteEndpoint(toMaster.w))
	RegisterHandlers(srv, local)
	go srv.Serve()

	client := protocol.NewClient(toMaster.r, streamio.NewWriteEndpoint(toWorker.w), 4242)
	return &Driver{client: client}
}

type testPipe struct {
	r io.ReadCloser
	w io.WriteCloser
}

func newTestPipe() testPipe {
	r, w := io.Pipe()
	return testPipe{r: r, w: w}
}

func TestRemoteWriteReadRoundTrip(t *testing.T) {
	d := wireInProcess(t)

	w, err := d.NewWrite("a/b.txt", storage.WriteOptions{Atomic: true, CreatePath: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("remote hello")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := d.NewRead("a/b.txt", storage.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "remote hello" {
		t.Fatalf("got %q", data)
	}
}

func TestRemoteInfoMissing(t *testing.T) {
	d := wireInProcess(t)
	rec, err := d.Info("nope", storage.InfoLevelBasic)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for a missing remote path")
	}
}

func TestRemoteFeatures(t *testing.T) {
	d := wireInProcess(t)
	feat := d.Features()
	if !feat[storage.FeaturePath] {
		t.Fatalf("expected the tunnelled posix backend to report FeaturePath")
	}
}

func TestRemotePathCreateAndRemove(t *testing.T) {
	d := wireInProcess(t)
	if err := d.PathCreate("dir", 0750, false, true); err != nil {
		t.Fatal(err)
	}
	rec, err := d.Info("dir", storage.InfoLevelBasic)
	if err != nil || rec == nil || rec.Type != storage.InfoTypeDir {
		t.Fatalf("expected directory record, got %v, %v", rec, err)
	}
	if err := d.PathRemove("dir", true); err != nil {
		t.Fatal(err)
	}
	rec, err = d.Info("dir", storage.InfoLevelBasic)
	if err != nil || rec != nil {
		t.Fatalf("expected dir to be gone")
	}
}
