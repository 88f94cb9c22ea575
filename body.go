package breeze

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
)

// Body is a lazy, at-most-once-readable sequence of byte chunks. Once
// consumed, further reads yield io.EOF — this resolves the spec's open
// question in favor of "yields empty / EOF" rather than an error.
type Body interface {
	io.Reader
	io.Closer

	// Len reports the body's size in bytes, or -1 if unknown (streaming).
	Len() int64
}

type bytesBody struct {
	r   *bytes.Reader
	n   int64
	eof bool
}

// NewBytesBody constructs a Body from an in-memory byte slice.
func NewBytesBody(b []byte) Body {
	return &bytesBody{r: bytes.NewReader(b), n: int64(len(b))}
}

func (b *bytesBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if errors.Is(err, io.EOF) {
		b.eof = true
	}
	return n, err
}

func (b *bytesBody) Close() error { b.eof = true; return nil }
func (b *bytesBody) Len() int64   { return b.n }

type readerBody struct {
	r    io.Reader
	c    io.Closer
	size int64
}

// NewReaderBody constructs a Body from an io.Reader of unknown length.
// If r also implements io.Closer, Close delegates to it.
func NewReaderBody(r io.Reader) Body {
	c, _ := r.(io.Closer)
	return &readerBody{r: r, c: c, size: -1}
}

func (b *readerBody) Read(p []byte) (int, error) {
	if b.r == nil {
		return 0, io.EOF
	}
	n, err := b.r.Read(p)
	if errors.Is(err, io.EOF) {
		b.r = nil
	}
	return n, err
}

func (b *readerBody) Close() error {
	b.r = nil
	if b.c != nil {
		return b.c.Close()
	}
	return nil
}

func (b *readerBody) Len() int64 { return b.size }

// NewFileBody constructs a Body that lazily opens path on first Read.
func NewFileBody(path string) Body {
	return &fileBody{path: path}
}

type fileBody struct {
	path string
	f    *os.File
	done bool
}

func (b *fileBody) open() error {
	if b.f != nil || b.done {
		return nil
	}
	f, err := os.Open(b.path)
	if err != nil {
		b.done = true
		return err
	}
	b.f = f
	return nil
}

func (b *fileBody) Read(p []byte) (int, error) {
	if b.done {
		return 0, io.EOF
	}
	if err := b.open(); err != nil {
		return 0, err
	}
	n, err := b.f.Read(p)
	if errors.Is(err, io.EOF) {
		b.done = true
		_ = b.f.Close()
	}
	return n, err
}

func (b *fileBody) Close() error {
	b.done = true
	if b.f != nil {
		return b.f.Close()
	}
	return nil
}

func (b *fileBody) Len() int64 {
	fi, err := os.Stat(b.path)
	if err != nil {
		return -1
	}
	return fi.Size()
}

// NewJSONBody encodes v as JSON eagerly, at construction time.
func NewJSONBody(v any) Body {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return &errBody{err: err}
	}
	return NewBytesBody(buf.Bytes())
}

type errBody struct{ err error }

func (b *errBody) Read([]byte) (int, error) { return 0, b.err }
func (b *errBody) Close() error             { return nil }
func (b *errBody) Len() int64               { return -1 }

// ReadAll drains body and returns its bytes.
func ReadAll(body Body) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	defer func() { _ = body.Close() }()
	return io.ReadAll(body)
}
