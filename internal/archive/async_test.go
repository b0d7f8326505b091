package archive

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/qiuwenhuifx/pgbackrest/internal/protocol"
	"github.com/qiuwenhuifx/pgbackrest/internal/storage/posix"
	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

type testPipe struct {
	r io.ReadCloser
	w io.WriteCloser
}

func newTestPipe() testPipe {
	r, w := io.Pipe()
	return testPipe{r: r, w: w}
}

// pipedClient wires a protocol.Client to an in-process protocol.Server
// registered with handler, the same shape a spawned worker's
// stdin/stdout give the master.
func pipedClient(t *testing.T, register func(*protocol.Server)) *protocol.Client {
	t.Helper()
	toWorker := newTestPipe()
	toMaster := newTestPipe()

	srv := protocol.NewServer(nil, toWorker.r, streamio.NewWriteEndpoint(toMaster.w))
	register(srv)
	go srv.Serve()

	return protocol.NewClient(toMaster.r, streamio.NewWriteEndpoint(toWorker.w), 0)
}

func TestPushAsyncPushesQueuedSegmentsToEveryClient(t *testing.T) {
	spool := posix.New(t.TempDir(), false)
	if err := Enqueue(spool, "main", QueueOut, "seg1", []byte("wal")); err != nil {
		t.Fatal(err)
	}

	pushed := map[string]bool{}
	client := pipedClient(t, func(srv *protocol.Server) {
		srv.Register("archive_push_file", func(ctx interface{}, parameter []interface{}) (interface{}, error) {
			pushed[parameter[1].(string)] = true
			return nil, nil
		})
	})
	defer client.Exit()

	cfg := PushAsyncConfig{
		Spool:    spool,
		LockPath: t.TempDir(),
		Stanza:   "main",
		Executor: protocol.NewExecutor([]*protocol.Client{client}),
		Cmd:      "archive_push_file",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := PushAsync(ctx, cfg); err != nil {
		t.Fatal(err)
	}

	if !pushed["seg1"] {
		t.Fatal("expected seg1 to be pushed")
	}
	st, found, err := Read(spool, "main", QueueOut, "seg1")
	if err != nil {
		t.Fatal(err)
	}
	if !found || !st.OK {
		t.Fatalf("expected an OK status, got %+v found=%v", st, found)
	}
}

func TestPushAsyncRecordsWorkerFailureAsErrorStatus(t *testing.T) {
	spool := posix.New(t.TempDir(), false)
	if err := Enqueue(spool, "main", QueueOut, "seg1", []byte("wal")); err != nil {
		t.Fatal(err)
	}

	client := pipedClient(t, func(srv *protocol.Server) {
		srv.Register("archive_push_file", func(ctx interface{}, parameter []interface{}) (interface{}, error) {
			return nil, errPushFailed
		})
	})
	defer client.Exit()

	cfg := PushAsyncConfig{
		Spool:    spool,
		LockPath: t.TempDir(),
		Stanza:   "main",
		Executor: protocol.NewExecutor([]*protocol.Client{client}),
		Cmd:      "archive_push_file",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := PushAsync(ctx, cfg); err != nil {
		t.Fatal(err)
	}

	st, found, err := Read(spool, "main", QueueOut, "seg1")
	if err != nil {
		t.Fatal(err)
	}
	if !found || st.OK {
		t.Fatalf("expected an error status, got %+v found=%v", st, found)
	}
}

type pushFailedErr struct{}

func (pushFailedErr) Error() string { return "disk full" }

var errPushFailed = pushFailedErr{}

func TestGetAsyncFetchesIdealQueueAndEnqueues(t *testing.T) {
	spool := posix.New(t.TempDir(), false)

	client := pipedClient(t, func(srv *protocol.Server) {
		srv.Register("archive_get_file", func(ctx interface{}, parameter []interface{}) (interface{}, error) {
			segment := parameter[1].(string)
			return map[string]interface{}{"data": []byte("bytes-for-" + segment)}, nil
		})
	})
	defer client.Exit()

	cfg := GetAsyncConfig{
		Spool:          spool,
		LockPath:       t.TempDir(),
		Stanza:         "main",
		From:           "000000010000000000000001",
		QueueDepth:     2,
		SegmentsPerLog: DefaultSegmentsPerLog,
		Executor:       protocol.NewExecutor([]*protocol.Client{client}),
		Cmd:            "archive_get_file",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := GetAsync(ctx, cfg); err != nil {
		t.Fatal(err)
	}

	segs, err := List(spool, "main", QueueIn)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %v", segs)
	}
	for _, seg := range segs {
		st, found, err := Read(spool, "main", QueueIn, seg)
		if err != nil {
			t.Fatal(err)
		}
		if !found || !st.OK {
			t.Fatalf("expected OK status for %q, got %+v", seg, st)
		}
	}
}

func TestGetAsyncSkipsAlreadyQueuedSegments(t *testing.T) {
	spool := posix.New(t.TempDir(), false)
	if err := Enqueue(spool, "main", QueueIn, "000000010000000000000001", []byte("already-here")); err != nil {
		t.Fatal(err)
	}

	requested := map[string]bool{}
	client := pipedClient(t, func(srv *protocol.Server) {
		srv.Register("archive_get_file", func(ctx interface{}, parameter []interface{}) (interface{}, error) {
			segment := parameter[1].(string)
			requested[segment] = true
			return map[string]interface{}{"data": []byte("bytes-for-" + segment)}, nil
		})
	})
	defer client.Exit()

	cfg := GetAsyncConfig{
		Spool:          spool,
		LockPath:       t.TempDir(),
		Stanza:         "main",
		From:           "000000010000000000000001",
		QueueDepth:     1,
		SegmentsPerLog: DefaultSegmentsPerLog,
		Executor:       protocol.NewExecutor([]*protocol.Client{client}),
		Cmd:            "archive_get_file",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := GetAsync(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	if requested["000000010000000000000001"] {
		t.Fatal("did not expect an already-queued segment to be re-fetched")
	}
}
