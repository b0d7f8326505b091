package filter

import (
	"bytes"
	"io"

	"github.com/juju/errors"
	"github.com/klauspost/compress/gzip"
)

// GzipCompressFilter buffers its input and produces a complete gzip
// stream once flushed. Grounded on github.com/klauspost/compress/gzip,
// used for this exact concern by the rest of the example pack
// (bureau-foundation-bureau, tomtom215-cartographus); promoted here
// from the teacher's indirect dependency to a direct one.
type GzipCompressFilter struct {
	level int
	buf   bytes.Buffer
	out   []byte
	ready bool
}

// NewGzipCompressFilter returns a compressing filter at the given gzip
// level (gzip.DefaultCompression if level is 0).
func NewGzipCompressFilter(level int) *GzipCompressFilter {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &GzipCompressFilter{level: level}
}

func (f *GzipCompressFilter) Name() string { return "compress-gzip" }

func (f *GzipCompressFilter) Process(in []byte) ([]byte, bool, error) {
	f.buf.Write(in)
	return nil, false, nil
}

func (f *GzipCompressFilter) Flush() ([]byte, bool, error) {
	if f.ready {
		return nil, true, nil
	}
	f.ready = true

	var dst bytes.Buffer
	w, err := gzip.NewWriterLevel(&dst, f.level)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	if _, err := w.Write(f.buf.Bytes()); err != nil {
		return nil, false, errors.Trace(err)
	}
	if err := w.Close(); err != nil {
		return nil, false, errors.Trace(err)
	}
	f.out = dst.Bytes()
	return f.out, true, nil
}

func (f *GzipCompressFilter) Result() interface{} { return nil }

// GzipDecompressFilter buffers its input and produces the decompressed
// payload once flushed.
type GzipDecompressFilter struct {
	buf   bytes.Buffer
	ready bool
}

// NewGzipDecompressFilter returns a decompressing filter.
func NewGzipDecompressFilter() *GzipDecompressFilter {
	return &GzipDecompressFilter{}
}

func (f *GzipDecompressFilter) Name() string { return "decompress-gzip" }

func (f *GzipDecompressFilter) Process(in []byte) ([]byte, bool, error) {
	f.buf.Write(in)
	return nil, false, nil
}

func (f *GzipDecompressFilter) Flush() ([]byte, bool, error) {
	if f.ready {
		return nil, true, nil
	}
	f.ready = true

	r, err := gzip.NewReader(bytes.NewReader(f.buf.Bytes()))
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	return out, true, nil
}

func (f *GzipDecompressFilter) Result() interface{} { return nil }
