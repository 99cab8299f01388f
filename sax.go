// Package sax is a streaming, event-based XML parser. It feeds input to a
// push-mode tokenizing engine in bounded chunks and translates the engine's
// raw callbacks into handler events: element start/end with a transient
// attribute view, character data, processing instructions, comments, and
// DTD boundaries. A live locator reports the current document position
// during every callback, and externally-declared entities are parsed
// through nested delegate sessions sharing the parent's configuration.
package sax

// Parse consumes one input source with a fresh single-use parser. When the
// handler also implements LexicalHandler, ErrorHandler, or EntityResolver,
// those roles are wired automatically.
func Parse(src InputSource, handler ContentHandler, opts ...Option) error {
	p := NewParser(opts...)
	defer p.Close()
	p.SetContentHandler(handler)
	if h, ok := handler.(LexicalHandler); ok {
		p.SetLexicalHandler(h)
	}
	if h, ok := handler.(ErrorHandler); ok {
		p.SetErrorHandler(h)
	}
	if h, ok := handler.(EntityResolver); ok {
		p.SetEntityResolver(h)
	}
	return p.Parse(src)
}

// ParseString parses an in-memory document.
func ParseString(text string, handler ContentHandler, opts ...Option) error {
	return Parse(StringInput(text), handler, opts...)
}

// ParseFile parses the file named by path.
func ParseFile(path string, handler ContentHandler, opts ...Option) error {
	return Parse(FileInput(path), handler, opts...)
}
