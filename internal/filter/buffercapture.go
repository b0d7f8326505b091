package filter

import "github.com/qiuwenhuifx/pgbackrest/internal/buffer"

// BufferCaptureFilter passes bytes through unchanged while also
// collecting them into a buffer.Buffer, surfaced via Result. Used when
// a caller needs both a streamed copy (e.g. to a repository write
// endpoint) and an in-memory copy (e.g. a small manifest-sized file
// read alongside the main archive stream).
type BufferCaptureFilter struct {
	buf *buffer.Buffer
}

// NewBufferCaptureFilter returns a filter capturing into a freshly
// allocated buffer.Buffer.
func NewBufferCaptureFilter() *BufferCaptureFilter {
	return &BufferCaptureFilter{buf: buffer.New(0)}
}

func (f *BufferCaptureFilter) Name() string { return "buffer-capture" }

func (f *BufferCaptureFilter) Process(in []byte) ([]byte, bool, error) {
	if len(in) > 0 {
		f.buf.Append(in)
	}
	return in, false, nil
}

func (f *BufferCaptureFilter) Flush() ([]byte, bool, error) { return nil, true, nil }

// Result returns the captured *buffer.Buffer.
func (f *BufferCaptureFilter) Result() interface{} { return f.buf }
