// Package xmlpush implements a push-mode XML 1.0 tokenizer.
//
// Callers feed arbitrarily fragmented byte chunks into an Engine and receive
// synchronous callbacks for each complete markup construct. The engine owns
// no I/O: it buffers partial tokens across Feed calls and resumes when more
// input arrives. Input must be UTF-8; callers converting from other charsets
// do so before feeding.
package xmlpush

import "fmt"

const defaultMaxDepth = 1024
const defaultMaxAttrs = 256

// RawAttr is one attribute of a start tag. Name and Value alias engine
// buffers and are valid only during the callback that delivered them.
type RawAttr struct {
	Name  []byte
	Value []byte
}

// Callbacks receives raw tokenizer events. A non-nil error return aborts the
// current Feed call and is reported to the feeder unchanged.
type Callbacks interface {
	StartTag(name []byte, attrs []RawAttr, selfClosing bool) error
	EndTag(name []byte) error
	Text(data []byte) error
	PI(target, data []byte) error
	Comment(data []byte) error
	DoctypeStart(name, publicID, systemID string) error
	DoctypeEnd() error
	EntityRef(decl EntityDecl) error
}

type config struct {
	entityMap map[string]string
	maxDepth  int
	maxAttrs  int
	fragment  bool
}

// Option configures an Engine.
type Option interface{ apply(*config) }

type optionFunc func(*config)

func (f optionFunc) apply(cfg *config) {
	if cfg == nil {
		return
	}
	f(cfg)
}

// WithMaxDepth limits element nesting depth.
func WithMaxDepth(n int) Option {
	return optionFunc(func(cfg *config) { cfg.maxDepth = n })
}

// WithMaxAttrs limits the attribute count of a single element.
func WithMaxAttrs(n int) Option {
	return optionFunc(func(cfg *config) { cfg.maxAttrs = n })
}

// WithEntityMap registers custom named entity replacements, consulted after
// the predefined five and before DOCTYPE-declared entities.
func WithEntityMap(values map[string]string) Option {
	return optionFunc(func(cfg *config) { cfg.entityMap = values })
}

// WithFragment parses external-entity content: character data outside a root
// element and multiple top-level elements are allowed, and no root element
// is required. DOCTYPE declarations remain prolog-only.
func WithFragment(enabled bool) Option {
	return optionFunc(func(cfg *config) { cfg.fragment = enabled })
}

// Engine is a push-mode XML tokenizer. It is not safe for concurrent use.
type Engine struct {
	cb       Callbacks
	opts     config
	buf      []byte
	pos      int
	offset   int64
	line     int
	column   int
	stack    []string
	entities map[string]EntityDecl
	attrs    []RawAttr
	textBuf  []byte
	err         error
	rootSeen    bool
	xmlDeclDone bool
	doctypeSeen bool
	final       bool
	released    bool
}

// New creates an engine. SetCallbacks must be called before the first Feed.
func New(opts ...Option) *Engine {
	cfg := config{
		maxDepth: defaultMaxDepth,
		maxAttrs: defaultMaxAttrs,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return &Engine{
		opts:     cfg,
		line:     1,
		column:   1,
		entities: make(map[string]EntityDecl),
	}
}

// SetCallbacks registers the receiver for raw events.
func (e *Engine) SetCallbacks(cb Callbacks) {
	e.cb = cb
}

// Release discards the engine's buffers. Safe to call more than once; any
// Feed after the first Release fails with ErrEngineReleased.
func (e *Engine) Release() {
	if e == nil || e.released {
		return
	}
	e.released = true
	e.buf = nil
	e.textBuf = nil
	e.attrs = nil
	e.stack = nil
	e.entities = nil
	e.cb = nil
}

// Released reports whether Release has been called.
func (e *Engine) Released() bool {
	return e != nil && e.released
}

// Line reports the 1-based line of the next unconsumed byte.
func (e *Engine) Line() int {
	if e == nil {
		return 0
	}
	return e.line
}

// Column reports the 1-based column of the next unconsumed byte.
func (e *Engine) Column() int {
	if e == nil {
		return 0
	}
	return e.column
}

// Depth reports the current element nesting depth.
func (e *Engine) Depth() int {
	if e == nil {
		return 0
	}
	return len(e.stack)
}

// Feed consumes one input chunk, invoking callbacks for every construct that
// completes. final marks end of input; the last Feed must set it so the
// engine can check document-level well-formedness. Errors are sticky: once
// Feed fails, every later call returns the same error.
func (e *Engine) Feed(p []byte, final bool) error {
	if e == nil {
		return fmt.Errorf("nil engine")
	}
	if e.released {
		return ErrEngineReleased
	}
	if e.err != nil {
		return e.err
	}
	if e.cb == nil {
		e.err = errNilCallbacks
		return e.err
	}
	if e.final {
		e.err = e.syntaxError(errInvalidToken)
		return e.err
	}
	e.buf = append(e.buf, p...)
	e.final = final
	if err := e.run(); err != nil {
		e.err = err
		return err
	}
	e.compact()
	return nil
}

// compact drops consumed bytes once the unread remainder is small relative
// to what has been consumed, keeping the buffer from growing with the
// document size.
func (e *Engine) compact() {
	if e.pos == 0 {
		return
	}
	if e.pos == len(e.buf) {
		e.buf = e.buf[:0]
		e.pos = 0
		return
	}
	if e.pos > 4096 && e.pos > len(e.buf)/2 {
		n := copy(e.buf, e.buf[e.pos:])
		e.buf = e.buf[:n]
		e.pos = 0
	}
}

// advance consumes n bytes, updating line and column.
func (e *Engine) advance(n int) {
	data := e.buf[e.pos : e.pos+n]
	for _, b := range data {
		if b == '\n' {
			e.line++
			e.column = 1
		} else {
			e.column++
		}
	}
	e.pos += n
	e.offset += int64(n)
}

func (e *Engine) syntaxError(err error) error {
	return &SyntaxError{
		Offset: e.offset,
		Line:   e.line,
		Column: e.column,
		Err:    err,
	}
}

func (e *Engine) syntaxErrorAt(line, column int, err error) error {
	return &SyntaxError{
		Offset: e.offset,
		Line:   line,
		Column: column,
		Err:    err,
	}
}
