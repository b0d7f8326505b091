package protocol

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

// pipedClientServer wires a Client and Server together over two
// io.Pipes, the same shape a spawned worker's stdin/stdout give the
// master, without forking a real process.
func pipedClientServer(t *testing.T, ctx interface{}) (*Client, *Server) {
	t.Helper()
	masterToWorker := newPipe()
	workerToMaster := newPipe()

	srv := NewServer(ctx, masterToWorker.r, streamio.NewWriteEndpoint(workerToMaster.w))
	clt := NewClient(workerToMaster.r, streamio.NewWriteEndpoint(masterToWorker.w), 0)
	return clt, srv
}

type pipe struct {
	r io.ReadCloser
	w io.WriteCloser
}

func newPipe() pipe {
	r, w := io.Pipe()
	return pipe{r: r, w: w}
}

func TestCallDispatchesToHandler(t *testing.T) {
	clt, srv := pipedClientServer(t, nil)
	srv.Register("echo", func(ctx interface{}, parameter []interface{}) (interface{}, error) {
		return parameter[0], nil
	})

	go srv.Serve()

	var out string
	if err := clt.Call("echo", []interface{}{"hello"}, &out); err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Fatalf("got %q, want %q", out, "hello")
	}
	clt.Exit()
}

func TestCallSurfacesHandlerError(t *testing.T) {
	clt, srv := pipedClientServer(t, nil)
	srv.Register("fail", func(ctx interface{}, parameter []interface{}) (interface{}, error) {
		return nil, errTest
	})
	go srv.Serve()

	err := clt.Call("fail", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*RemoteError); !ok {
		t.Fatalf("expected *RemoteError, got %T: %v", err, err)
	}
	clt.Exit()
}

var errTest = &testErr{"boom"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func TestExecutorRunsJobsAcrossPool(t *testing.T) {
	var clients []*Client
	for i := 0; i < 2; i++ {
		clt, srv := pipedClientServer(t, nil)
		srv.Register("double", func(ctx interface{}, parameter []interface{}) (interface{}, error) {
			n, _ := parameter[0].(float64)
			return n * 2, nil
		})
		go srv.Serve()
		clients = append(clients, clt)
	}

	exec := NewExecutor(clients)
	jobs := []Job{
		{Key: "a", Cmd: "double", Parameter: []interface{}{1.0}},
		{Key: "b", Cmd: "double", Parameter: []interface{}{2.0}},
		{Key: "c", Cmd: "double", Parameter: []interface{}{3.0}},
	}

	seen := map[string]bool{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := exec.Run(ctx, jobs, func(c Completion) {
		if c.Err != nil {
			t.Errorf("job %s failed: %v", c.Key, c.Err)
		}
		seen[c.Key] = true
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if !seen[k] {
			t.Fatalf("job %q never completed", k)
		}
	}
	for _, c := range clients {
		c.Exit()
	}
}
