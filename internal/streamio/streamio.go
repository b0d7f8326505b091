// Package streamio defines the polymorphic byte-stream endpoints every
// storage driver and filter chain reads from or writes to: a blocking
// or non-blocking read endpoint with an end-of-stream flag, a write
// endpoint with an explicit flush, and a line reader layered on top of
// any read endpoint.
package streamio

import (
	"io"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("pgbackrest.streamio")

// ReadEndpoint is a byte-stream source that knows whether it has been
// exhausted. Read behaves like io.Reader: it may return fewer bytes
// than len(p) without that meaning EOF.
type ReadEndpoint interface {
	Read(p []byte) (n int, err error)
	// EOF reports whether the endpoint has been fully drained. It is
	// only meaningful after a Read has returned 0, io.EOF.
	EOF() bool
	Close() error
}

// WriteEndpoint is a byte-stream sink with an explicit flush, for
// endpoints (compressors, buffered files) that hold back bytes until
// asked.
type WriteEndpoint interface {
	Write(p []byte) (n int, err error)
	Flush() error
	Close() error
}

// fileEndpoint adapts any io.ReadCloser/io.WriteCloser into a
// ReadEndpoint/WriteEndpoint, tracking EOF the way a line reader needs
// to distinguish "drained" from "temporarily empty".
type fileEndpoint struct {
	rc  io.ReadCloser
	wc  io.WriteCloser
	eof bool
}

// NewReadEndpoint wraps an io.ReadCloser (an open file, a network
// connection, the stdout pipe of a worker process) as a ReadEndpoint.
func NewReadEndpoint(rc io.ReadCloser) ReadEndpoint {
	return &fileEndpoint{rc: rc}
}

func (f *fileEndpoint) Read(p []byte) (int, error) {
	n, err := f.rc.Read(p)
	if err == io.EOF {
		f.eof = true
	}
	return n, err
}

func (f *fileEndpoint) EOF() bool { return f.eof }

func (f *fileEndpoint) Close() error {
	if f.rc != nil {
		return f.rc.Close()
	}
	return f.wc.Close()
}

// flusher is implemented by writers (e.g. bufio.Writer, gzip.Writer)
// that buffer output and need an explicit push.
type flusher interface {
	Flush() error
}

// NewWriteEndpoint wraps an io.WriteCloser as a WriteEndpoint. If w
// also implements Flush (bufio.Writer, compress/gzip.Writer and
// friends), Flush delegates to it; otherwise Flush is a no-op, matching
// unbuffered sinks like *os.File.
func NewWriteEndpoint(wc io.WriteCloser) WriteEndpoint {
	return &writeEndpoint{wc: wc}
}

type writeEndpoint struct {
	wc io.WriteCloser
}

func (w *writeEndpoint) Write(p []byte) (int, error) { return w.wc.Write(p) }

func (w *writeEndpoint) Flush() error {
	if f, ok := w.wc.(flusher); ok {
		return f.Flush()
	}
	return nil
}

func (w *writeEndpoint) Close() error { return w.wc.Close() }

// LineReader layers line-at-a-time reads on top of a ReadEndpoint,
// using an internal buffer that grows to accommodate one line at a
// time. Hitting maxLine bytes without a linefeed is a protocol error:
// the line-delimited master/worker wire format never sends lines that
// long.
type LineReader struct {
	src     ReadEndpoint
	buf     []byte
	maxLine int
	scratch [4096]byte
}

// NewLineReader returns a LineReader over src. maxLine bounds how far
// the internal buffer may grow looking for a linefeed; pass 0 for the
// default of 1 MiB, generous for the JSON protocol messages this
// mostly serves.
func NewLineReader(src ReadEndpoint, maxLine int) *LineReader {
	if maxLine <= 0 {
		maxLine = 1 << 20
	}
	return &LineReader{src: src, maxLine: maxLine}
}

// ReadLine returns the next newline-terminated line (without the
// trailing '\n'). If the endpoint reaches EOF with a non-empty partial
// line buffered and allowEOF is true, that partial line is returned
// with a nil error; if allowEOF is false the partial line is reported
// as an error instead of being silently dropped.
func (l *LineReader) ReadLine(allowEOF bool) (string, error) {
	for {
		if i := indexByte(l.buf, '\n'); i >= 0 {
			line := string(l.buf[:i])
			l.buf = l.buf[i+1:]
			return line, nil
		}
		if len(l.buf) >= l.maxLine {
			return "", errors.Errorf("line exceeds maximum length of %d bytes without a linefeed", l.maxLine)
		}

		n, err := l.src.Read(l.scratch[:])
		if n > 0 {
			l.buf = append(l.buf, l.scratch[:n]...)
		}
		if err != nil {
			if err == io.EOF || l.src.EOF() {
				if len(l.buf) > 0 {
					if !allowEOF {
						return "", errors.Errorf("unexpected end of stream mid-line: %q", l.buf)
					}
					line := string(l.buf)
					l.buf = nil
					return line, nil
				}
				return "", io.EOF
			}
			return "", errors.Trace(err)
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Copy drains src into dst using a fixed-size buffer, flushing dst once
// at the end. It is the non-filtered fast path used when a storage
// driver's read and write endpoints need no transforms in between.
func Copy(dst WriteEndpoint, src ReadEndpoint) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, errors.Trace(werr)
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF || src.EOF() {
				break
			}
			return total, errors.Trace(rerr)
		}
	}
	if err := dst.Flush(); err != nil {
		return total, errors.Trace(err)
	}
	logger.Tracef("copied %d bytes", total)
	return total, nil
}
