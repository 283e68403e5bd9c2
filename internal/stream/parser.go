package stream

// Process runs produce with a Handler that forwards every callback onto the
// Chunks channel, and closes the channel when produce returns.
func (p *Parser) Process(produce func(h Handler)) {
	defer close(p.chunks)
	produce(p.Handler())
}

// ProcessSource reads src with the parser's FrameReader.
func (p *Parser) ProcessSource(src Source) {
	p.Process(func(h Handler) {
		p.reader.Read(p.ctx, src, h)
	})
}

// Handler returns callbacks that send onto the Chunks channel. Sends are
// abandoned once the parser's context is done.
func (p *Parser) Handler() Handler {
	return Handler{
		OnData:  func(payload string) { p.send(Chunk{Content: payload}) },
		OnEnd:   func() { p.send(Chunk{Done: true}) },
		OnError: func(err error) { p.send(Chunk{Error: err}) },
	}
}

func (p *Parser) send(c Chunk) {
	select {
	case <-p.ctx.Done():
	case p.chunks <- c:
	}
}
