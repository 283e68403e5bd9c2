package stream

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const decodeBufferSize = 4096

// Decoder turns byte chunks into text, holding back a trailing incomplete
// multi-byte sequence until the next chunk completes it.
type Decoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

// NewDecoder returns a UTF-8 Decoder. Invalid sequences decode to U+FFFD.
func NewDecoder() *Decoder {
	return NewDecoderFor(unicode.UTF8)
}

// NewDecoderFor returns a Decoder for an arbitrary x/text encoding.
func NewDecoderFor(enc encoding.Encoding) *Decoder {
	return newDecoder(enc.NewDecoder())
}

func newDecoder(t transform.Transformer) *Decoder {
	return &Decoder{t: t, dst: make([]byte, decodeBufferSize)}
}

// LookupEncoding resolves a WHATWG encoding label such as "utf-8" or "gbk".
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	return enc, nil
}

// Decode converts chunk to text. Bytes that do not yet form a complete
// character are kept and prepended to the next call.
func (d *Decoder) Decode(chunk []byte) (string, error) {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	var out strings.Builder
	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(d.dst, src, false)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String(), nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			return out.String(), nil
		default:
			return out.String(), fmt.Errorf("failed to decode chunk: %w", err)
		}
	}
	return out.String(), nil
}

// Pending reports how many undecoded bytes are being held back.
func (d *Decoder) Pending() int {
	return len(d.pending)
}
