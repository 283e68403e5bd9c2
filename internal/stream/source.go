package stream

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is the number of bytes a ReaderSource asks for per pull.
const DefaultChunkSize = 4096

// Source yields the chunks of a byte stream. Next returns io.EOF once the
// stream is complete; any other error aborts the read.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// ReaderSource pulls chunks from an io.Reader such as an HTTP response body.
type ReaderSource struct {
	r   io.Reader
	buf []byte
	err error
}

// NewReaderSource wraps r. A size <= 0 selects DefaultChunkSize.
func NewReaderSource(r io.Reader, size int) *ReaderSource {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ReaderSource{r: r, buf: make([]byte, size)}
}

// Next returns the bytes produced by one Read of the underlying reader.
// Data returned alongside an error is delivered first and the error is
// reported on the following call.
func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := s.r.Read(s.buf)
		if err != nil {
			s.err = err
		}
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			return chunk, nil
		}
		if err == nil {
			// A zero-byte read without error is allowed by io.Reader.
			continue
		}
	}
}

// SliceSource yields a fixed list of chunks, then Err (io.EOF when nil).
type SliceSource struct {
	Chunks [][]byte
	Err    error
	next   int
}

// NewSliceSource returns a SliceSource over the given strings.
func NewSliceSource(chunks ...string) *SliceSource {
	s := &SliceSource{Chunks: make([][]byte, len(chunks))}
	for i, c := range chunks {
		s.Chunks[i] = []byte(c)
	}
	return s
}

func (s *SliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next < len(s.Chunks) {
		chunk := s.Chunks[s.next]
		s.next++
		return chunk, nil
	}
	if s.Err != nil && !errors.Is(s.Err, io.EOF) {
		return nil, s.Err
	}
	return nil, io.EOF
}
