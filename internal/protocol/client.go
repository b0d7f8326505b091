package protocol

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

// Client is the master-side handle for one worker: a pair of pipes
// plus the line framing needed to send Requests and receive
// Responses. Per-client traffic is strictly FIFO; Call blocks until
// the matching response line arrives.
type Client struct {
	mu  sync.Mutex
	in  *streamio.LineReader
	out streamio.WriteEndpoint
	pid int
}

// NewClient wraps a worker's stdin (write side, from the master's
// perspective) and stdout (read side) as a protocol Client. pid is
// recorded for log correlation on completion, per spec.
func NewClient(stdout io.ReadCloser, stdin streamio.WriteEndpoint, pid int) *Client {
	return &Client{
		in:  streamio.NewLineReader(streamio.NewReadEndpoint(stdout), 0),
		out: stdin,
		pid: pid,
	}
}

// Pid returns the worker process id, for log correlation.
func (c *Client) Pid() int { return c.pid }

// Call sends {cmd, parameter} and blocks for the matching response
// line, decoding its "out" field into result (if non-nil) or returning
// a *RemoteError built from the worker's "err" field.
func (c *Client) Call(cmd string, parameter []interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := Request{Cmd: cmd, Parameter: parameter}
	line, err := json.Marshal(req)
	if err != nil {
		return errors.Trace(err)
	}
	line = append(line, '\n')
	if _, err := c.out.Write(line); err != nil {
		return errors.Annotatef(err, "write %q request", cmd)
	}
	if err := c.out.Flush(); err != nil {
		return errors.Annotatef(err, "flush %q request", cmd)
	}

	respLine, err := c.in.ReadLine(false)
	if err != nil {
		return errors.Annotatef(err, "read %q response", cmd)
	}
	var resp Response
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		return errors.Annotatef(err, "decode %q response", cmd)
	}
	if resp.Err != nil {
		return &RemoteError{Code: resp.Err.Code, Message: resp.Err.Message, Stack: resp.Err.Stack}
	}
	if result != nil && len(resp.Out) > 0 {
		if err := json.Unmarshal(resp.Out, result); err != nil {
			return errors.Annotatef(err, "unmarshal %q result", cmd)
		}
	}
	return nil
}

// Exit sends the terminating "exit" command and closes the client's
// write side, causing the worker to observe EOF and terminate per the
// wire protocol's worker-lifecycle rule.
func (c *Client) Exit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, _ := json.Marshal(Request{Cmd: "exit"})
	line = append(line, '\n')
	c.out.Write(line)
	c.out.Flush()
	return c.out.Close()
}
