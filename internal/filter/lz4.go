package filter

import (
	"bytes"
	"io"

	"github.com/juju/errors"
	"github.com/pierrec/lz4/v4"
)

// Lz4CompressFilter buffers its input and produces a complete LZ4
// frame once flushed. Grounded on github.com/pierrec/lz4/v4, a direct
// dependency of bureau-foundation-bureau and tomtom215-cartographus in
// the example pack for exactly this concern.
type Lz4CompressFilter struct {
	buf   bytes.Buffer
	ready bool
}

// NewLz4CompressFilter returns a compressing filter.
func NewLz4CompressFilter() *Lz4CompressFilter { return &Lz4CompressFilter{} }

func (f *Lz4CompressFilter) Name() string { return "compress-lz4" }

func (f *Lz4CompressFilter) Process(in []byte) ([]byte, bool, error) {
	f.buf.Write(in)
	return nil, false, nil
}

func (f *Lz4CompressFilter) Flush() ([]byte, bool, error) {
	if f.ready {
		return nil, true, nil
	}
	f.ready = true

	var dst bytes.Buffer
	w := lz4.NewWriter(&dst)
	if _, err := w.Write(f.buf.Bytes()); err != nil {
		return nil, false, errors.Trace(err)
	}
	if err := w.Close(); err != nil {
		return nil, false, errors.Trace(err)
	}
	return dst.Bytes(), true, nil
}

func (f *Lz4CompressFilter) Result() interface{} { return nil }

// Lz4DecompressFilter buffers its input and produces the decompressed
// payload once flushed.
type Lz4DecompressFilter struct {
	buf   bytes.Buffer
	ready bool
}

// NewLz4DecompressFilter returns a decompressing filter.
func NewLz4DecompressFilter() *Lz4DecompressFilter { return &Lz4DecompressFilter{} }

func (f *Lz4DecompressFilter) Name() string { return "decompress-lz4" }

func (f *Lz4DecompressFilter) Process(in []byte) ([]byte, bool, error) {
	f.buf.Write(in)
	return nil, false, nil
}

func (f *Lz4DecompressFilter) Flush() ([]byte, bool, error) {
	if f.ready {
		return nil, true, nil
	}
	f.ready = true

	r := lz4.NewReader(bytes.NewReader(f.buf.Bytes()))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	return out, true, nil
}

func (f *Lz4DecompressFilter) Result() interface{} { return nil }
