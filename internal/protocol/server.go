package protocol

import (
	"encoding/json"
	"io"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

var logger = loggo.GetLogger("pgbackrest.protocol")

// HandlerFunc implements one worker command. It receives the request's
// parameters already decoded from JSON and returns the value to
// marshal as the response's "out" field, or an error to report as
// "err".
type HandlerFunc func(ctx interface{}, parameter []interface{}) (interface{}, error)

// Server is the worker-side message loop: it reads one Request per
// line, dispatches by Cmd to a registered handler, and writes back one
// Response per line, until EOF or an "exit" command.
//
// Handlers never reach into process-wide globals; Ctx is the explicit
// dependency-passing context (e.g. the repository storage handles, the
// PostgreSQL client) every handler receives, per the wire protocol's
// "avoid process-wide mutable singletons" resolution.
type Server struct {
	Ctx      interface{}
	handlers map[string]HandlerFunc

	in  *streamio.LineReader
	out streamio.WriteEndpoint
}

// NewServer wraps r/w as a worker's protocol endpoint. w must implement
// streamio.WriteEndpoint (Write+Flush+Close); callers typically pass a
// streamio.NewWriteEndpoint-wrapped os.Stdout.
func NewServer(ctx interface{}, r io.ReadCloser, w streamio.WriteEndpoint) *Server {
	return &Server{
		Ctx:      ctx,
		handlers: make(map[string]HandlerFunc),
		in:       streamio.NewLineReader(streamio.NewReadEndpoint(r), 0),
		out:      w,
	}
}

// Register associates cmd with fn. Registering the same cmd twice
// replaces the earlier handler.
func (s *Server) Register(cmd string, fn HandlerFunc) {
	s.handlers[cmd] = fn
}

// Serve runs the read-dispatch-write loop until the client closes its
// write side (EOF) or sends {"cmd":"exit"}. It returns nil on a clean
// EOF or explicit exit, and a non-nil error for any I/O failure.
func (s *Server) Serve() error {
	for {
		line, err := s.in.ReadLine(true)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Annotate(err, "read request")
		}
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if werr := s.writeResponse(Response{Err: &ErrPayload{Code: 1, Message: err.Error()}}); werr != nil {
				return errors.Annotate(werr, "write response")
			}
			continue
		}

		if req.Cmd == "exit" {
			return nil
		}

		resp := s.dispatch(req)
		if err := s.writeResponse(resp); err != nil {
			return errors.Annotate(err, "write response")
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	fn, ok := s.handlers[req.Cmd]
	if !ok {
		return Response{Err: &ErrPayload{Code: 1, Message: "unknown command: " + req.Cmd}}
	}
	out, err := fn(s.Ctx, req.Parameter)
	if err != nil {
		logger.Errorf("%s: %v", req.Cmd, err)
		return Response{Err: &ErrPayload{Code: errCode(err), Message: err.Error(), Stack: errors.ErrorStack(err)}}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return Response{Err: &ErrPayload{Code: 1, Message: err.Error()}}
	}
	return Response{Out: raw}
}

func (s *Server) writeResponse(resp Response) error {
	line, err := json.Marshal(resp)
	if err != nil {
		return errors.Trace(err)
	}
	line = append(line, '\n')
	if _, err := s.out.Write(line); err != nil {
		return errors.Trace(err)
	}
	return s.out.Flush()
}

// Coded is implemented by errors that carry a stable numeric exit code
// (internal/errs's sentinel types); errCode falls back to 1 for plain
// errors.
type Coded interface {
	Code() int
}

func errCode(err error) int {
	if c, ok := errors.Cause(err).(Coded); ok {
		return c.Code()
	}
	return 1
}
