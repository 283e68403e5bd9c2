package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Handler receives the outcome of a read. Nil callbacks are ignored.
//
// OnEnd may fire more than once: once per end frame and once more when the
// source completes. Callers must make their teardown idempotent.
type Handler struct {
	OnData  func(payload string)
	OnEnd   func()
	OnError func(err error)
}

// Data invokes OnData if set.
func (h Handler) Data(payload string) {
	if h.OnData != nil {
		h.OnData(payload)
	}
}

// End invokes OnEnd if set.
func (h Handler) End() {
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

// Fail invokes OnError if set.
func (h Handler) Fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// FrameReader splits a decoded byte stream into frames and dispatches them
// to a Handler. A FrameReader holds no per-stream state and may be reused.
type FrameReader struct {
	logger   *zap.Logger
	encoding encoding.Encoding
}

// Option configures a FrameReader.
type Option func(*FrameReader)

// WithLogger sets the logger used for dropped frames and discarded text.
func WithLogger(logger *zap.Logger) Option {
	return func(r *FrameReader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEncoding sets the character encoding of the byte stream.
func WithEncoding(enc encoding.Encoding) Option {
	return func(r *FrameReader) {
		if enc != nil {
			r.encoding = enc
		}
	}
}

// NewFrameReader returns a FrameReader for UTF-8 streams unless configured otherwise.
func NewFrameReader(opts ...Option) *FrameReader {
	r := &FrameReader{logger: zap.NewNop(), encoding: unicode.UTF8}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read consumes src until it completes, fails or ctx is cancelled.
//
// Completion calls h.OnEnd once; text after the last delimiter is dropped.
// A failure calls h.OnError once with a *ReadError and OnEnd is not called.
// End frames call h.OnEnd without stopping the loop.
func (r *FrameReader) Read(ctx context.Context, src Source, h Handler) {
	dec := NewDecoderFor(r.encoding)
	var buffer string

	for {
		if err := ctx.Err(); err != nil {
			h.Fail(&ReadError{Err: err, Pending: utf8.RuneCountInString(buffer)})
			return
		}

		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			if buffer != "" || dec.Pending() > 0 {
				r.logger.Debug("discarding incomplete frame at end of stream",
					zap.Int("chars", utf8.RuneCountInString(buffer)),
					zap.Int("undecoded_bytes", dec.Pending()))
			}
			h.End()
			return
		}
		if err != nil {
			h.Fail(&ReadError{Err: err, Pending: utf8.RuneCountInString(buffer)})
			return
		}

		text, err := dec.Decode(chunk)
		if err != nil {
			h.Fail(&ReadError{Err: err, Pending: utf8.RuneCountInString(buffer)})
			return
		}
		buffer += text

		frames := strings.Split(buffer, FrameDelimiter)
		// The last segment has no delimiter yet and may still grow.
		buffer = frames[len(frames)-1]
		for _, raw := range frames[:len(frames)-1] {
			r.dispatch(raw, h)
		}
	}
}

func (r *FrameReader) dispatch(text string, h Handler) {
	frame := ParseFrame(text)
	switch frame.Kind {
	case FrameData:
		h.Data(frame.Payload)
	case FrameEnd:
		h.End()
	default:
		r.logger.Debug("dropping unrecognized frame",
			zap.Stringer("kind", frame.Kind),
			zap.Int("length", len(text)))
	}
}
