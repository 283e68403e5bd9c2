package stream

import "strings"

// Wire format of the conversation stream.
const (
	FrameDelimiter = "\n\n"
	DataPrefix     = "data: "
	EndPrefix      = "event: end"
)

// FrameKind classifies a complete frame.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameData
	FrameEnd
)

func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Frame is one delimited unit of the stream, without its trailing delimiter.
type Frame struct {
	Kind    FrameKind
	Payload string
}

// ParseFrame classifies text by its literal prefix. Data payloads are
// returned verbatim, internal newlines included.
func ParseFrame(text string) Frame {
	if payload, ok := strings.CutPrefix(text, DataPrefix); ok {
		return Frame{Kind: FrameData, Payload: payload}
	}
	if strings.HasPrefix(text, EndPrefix) {
		return Frame{Kind: FrameEnd}
	}
	return Frame{Kind: FrameUnknown, Payload: text}
}

// EncodeData returns the wire form of a data frame carrying payload.
func EncodeData(payload string) []byte {
	return []byte(DataPrefix + payload + FrameDelimiter)
}

// EncodeEnd returns the wire form of an end frame.
func EncodeEnd() []byte {
	return []byte(EndPrefix + FrameDelimiter)
}
