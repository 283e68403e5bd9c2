package stream

import "context"

// Chunk is one event delivered on a Parser channel: a data payload, an end
// signal or an error.
type Chunk struct {
	Content string
	Done    bool
	Error   error
}

// Parser adapts Handler callbacks into a channel of Chunks.
type Parser struct {
	ctx    context.Context
	chunks chan Chunk
	reader *FrameReader
}

func NewParser(ctx context.Context, opts ...Option) *Parser {
	return &Parser{
		ctx:    ctx,
		chunks: make(chan Chunk),
		reader: NewFrameReader(opts...),
	}
}

func (p *Parser) Chunks() <-chan Chunk {
	return p.chunks
}
