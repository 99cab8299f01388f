package sax

import (
	"errors"
	"fmt"
	"io"

	saxerrors "github.com/jacoelho/sax/errors"
	"github.com/jacoelho/sax/internal/names"
	"github.com/jacoelho/sax/pkg/xmlpush"
)

type parserState int

const (
	stateIdle parserState = iota
	stateParsing
	stateCompleted
	stateFailed
	stateClosed
)

// elementName is the resolved name of one open element, kept so EndElement
// reports the same values as the matching StartElement.
type elementName struct {
	uri   string
	local string
	qname string
}

// Parser drives the push engine over one input source and translates raw
// engine callbacks into handler events. A Parser parses a single document:
// Parse may be called once, and the engine handle is released exactly once
// on completion, failure, or Close, whichever comes first. Not safe for
// concurrent use.
type Parser struct {
	cfg      config
	content  ContentHandler
	lexical  LexicalHandler
	errs     ErrorHandler
	resolver EntityResolver

	engine      *xmlpush.Engine
	state       parserState
	ns          names.Stack
	elems       []elementName
	attrScratch []Attr

	// liveGen is non-zero only while a start-element callback is running;
	// attribute views compare against it to detect stale access.
	liveGen uint64
	nextGen uint64

	lastLine   int
	lastColumn int
	publicID   string
	systemID   string

	fragment    bool
	entityDepth int
}

// NewParser creates an idle parser. Handlers are registered with the Set*
// methods before calling Parse.
func NewParser(opts ...Option) *Parser {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return &Parser{cfg: cfg}
}

// SetContentHandler registers the receiver of content events.
func (p *Parser) SetContentHandler(h ContentHandler) { p.content = h }

// SetLexicalHandler registers the receiver of comment and DTD events.
func (p *Parser) SetLexicalHandler(h LexicalHandler) { p.lexical = h }

// SetErrorHandler registers the receiver of non-fatal diagnostics.
func (p *Parser) SetErrorHandler(h ErrorHandler) { p.errs = h }

// SetEntityResolver registers the external entity resolver.
func (p *Parser) SetEntityResolver(r EntityResolver) { p.resolver = r }

// Locator returns the parser's live position accessor.
func (p *Parser) Locator() Locator { return documentLocator{p: p} }

// Parse consumes the source to completion or first fatal error. A Parser is
// single use: a second call, or a call after Close, fails with a usage
// error. The engine handle is released before Parse returns on every path.
func (p *Parser) Parse(src InputSource) (err error) {
	switch p.state {
	case stateIdle:
	case stateClosed:
		return saxerrors.New(saxerrors.ErrUsage, "parser already closed")
	case stateParsing:
		return saxerrors.New(saxerrors.ErrUsage, "parse already in progress")
	default:
		return saxerrors.New(saxerrors.ErrUsage, "parser already used")
	}
	p.state = stateParsing

	defer func() {
		p.releaseEngine()
		if p.state != stateParsing {
			return
		}
		if err != nil {
			p.state = stateFailed
		} else {
			p.state = stateCompleted
		}
	}()

	return p.run(src)
}

// Close releases the engine handle. Idempotent; a closed parser rejects
// Parse with a usage error.
func (p *Parser) Close() error {
	if p.state == stateClosed {
		return nil
	}
	p.releaseEngine()
	p.state = stateClosed
	return nil
}

func (p *Parser) releaseEngine() {
	if p.engine != nil {
		p.engine.Release()
	}
	p.liveGen = 0
}

func (p *Parser) run(src InputSource) error {
	p.publicID = src.PublicID
	p.systemID = src.SystemID

	r, closer, err := src.open(p.cfg.encoding)
	if err != nil {
		return p.inputError(err)
	}
	if closer != nil {
		defer closer.Close()
	}

	engineOpts := make([]xmlpush.Option, 0, 3)
	if p.cfg.maxDepth > 0 {
		engineOpts = append(engineOpts, xmlpush.WithMaxDepth(p.cfg.maxDepth))
	}
	if p.cfg.maxAttrs > 0 {
		engineOpts = append(engineOpts, xmlpush.WithMaxAttrs(p.cfg.maxAttrs))
	}
	if p.fragment {
		engineOpts = append(engineOpts, xmlpush.WithFragment(true))
	}
	p.engine = xmlpush.New(engineOpts...)
	p.engine.SetCallbacks(&rawBridge{p: p})

	p.cfg.logger.Debug().
		Str("system_id", p.systemID).
		Bool("fragment", p.fragment).
		Msg("parse start")

	if p.content != nil && !p.fragment {
		p.content.SetDocumentLocator(p.Locator())
		if err := p.content.StartDocument(); err != nil {
			return p.consumerError(err)
		}
	}

	buf := make([]byte, p.cfg.chunkSize)
	for {
		n, readErr := r.Read(buf)
		final := errors.Is(readErr, io.EOF)
		if readErr != nil && !final {
			return p.inputError(readErr)
		}
		if err := p.engine.Feed(buf[:n], final); err != nil {
			p.updatePosition()
			return p.translateEngineError(err)
		}
		p.updatePosition()
		if final {
			break
		}
	}

	if p.content != nil && !p.fragment {
		if err := p.content.EndDocument(); err != nil {
			return p.consumerError(err)
		}
	}
	p.cfg.logger.Debug().Str("system_id", p.systemID).Msg("parse complete")
	return nil
}

func (p *Parser) updatePosition() {
	if p.engine != nil && !p.engine.Released() {
		p.lastLine = p.engine.Line()
		p.lastColumn = p.engine.Column()
	}
}

// inputError wraps stream-level failures: charset problems keep their
// encoding code, everything else is an input error.
func (p *Parser) inputError(err error) error {
	if perr, ok := saxerrors.AsParse(err); ok {
		p.stamp(perr)
		return perr
	}
	perr := saxerrors.Newf(saxerrors.ErrInput, "reading input: %v", err)
	perr.Err = err
	p.stamp(perr)
	return perr
}

// translateEngineError maps engine failures onto parse errors with
// position and document identity attached.
func (p *Parser) translateEngineError(err error) error {
	if perr, ok := saxerrors.AsParse(err); ok {
		return perr
	}
	var syntax *xmlpush.SyntaxError
	if errors.As(err, &syntax) {
		perr := saxerrors.Newf(saxerrors.ErrMalformed, "%v", syntax.Err)
		perr.Line = syntax.Line
		perr.Column = syntax.Column
		perr.PublicID = p.publicID
		perr.SystemID = p.systemID
		perr.Err = err
		return perr
	}
	if errors.Is(err, xmlpush.ErrEngineReleased) {
		return saxerrors.New(saxerrors.ErrUsage, "parser already closed")
	}
	perr := saxerrors.Newf(saxerrors.ErrMalformed, "%v", err)
	perr.Err = err
	p.stamp(perr)
	return perr
}

// consumerError wraps handler failures, preserving deliberate parse errors.
func (p *Parser) consumerError(err error) error {
	if perr, ok := saxerrors.AsParse(err); ok {
		return perr
	}
	perr := saxerrors.Newf(saxerrors.ErrConsumer, "handler failed: %v", err)
	perr.Err = err
	p.stamp(perr)
	return perr
}

// stamp fills in position and document identity when missing.
func (p *Parser) stamp(perr *saxerrors.Parse) {
	if perr.Line == 0 {
		perr.Line = p.lastLine
		perr.Column = p.lastColumn
	}
	if perr.SystemID == "" {
		perr.PublicID = p.publicID
		perr.SystemID = p.systemID
	}
}

// reportError routes a non-fatal diagnostic to the error handler. The
// handler escalates by returning non-nil; without a handler the diagnostic
// is dropped and parsing continues.
func (p *Parser) reportError(perr *saxerrors.Parse) error {
	p.cfg.logger.Debug().Str("code", string(perr.Code)).Msg(perr.Message)
	if p.errs == nil {
		return nil
	}
	if err := p.errs.Error(perr); err != nil {
		return p.consumerError(err)
	}
	return nil
}

// reportWarning routes a warning diagnostic, with the same escalation rule.
func (p *Parser) reportWarning(perr *saxerrors.Parse) error {
	if p.errs == nil {
		return nil
	}
	if err := p.errs.Warning(perr); err != nil {
		return p.consumerError(err)
	}
	return nil
}

// rawBridge adapts engine callbacks onto the parser without exporting the
// raw surface on Parser itself.
type rawBridge struct {
	p *Parser
}

func (b *rawBridge) StartTag(name []byte, attrs []xmlpush.RawAttr, selfClosing bool) error {
	return b.p.startElement(string(name), attrs)
}

func (b *rawBridge) EndTag(name []byte) error {
	return b.p.endElement()
}

func (b *rawBridge) Text(data []byte) error {
	p := b.p
	p.updatePosition()
	if p.content == nil {
		return nil
	}
	if err := p.content.Characters(data); err != nil {
		return p.consumerError(err)
	}
	return nil
}

func (b *rawBridge) PI(target, data []byte) error {
	p := b.p
	p.updatePosition()
	if p.content == nil {
		return nil
	}
	if err := p.content.ProcessingInstruction(string(target), string(data)); err != nil {
		return p.consumerError(err)
	}
	return nil
}

func (b *rawBridge) Comment(data []byte) error {
	p := b.p
	p.updatePosition()
	if p.lexical == nil {
		return nil
	}
	if err := p.lexical.Comment(data); err != nil {
		return p.consumerError(err)
	}
	return nil
}

func (b *rawBridge) DoctypeStart(name, publicID, systemID string) error {
	p := b.p
	p.updatePosition()
	if systemID != "" {
		warn := saxerrors.Newf(saxerrors.ErrEntityResolution,
			"external DTD subset %q not processed", systemID)
		p.stamp(warn)
		if err := p.reportWarning(warn); err != nil {
			return err
		}
	}
	if p.lexical == nil {
		return nil
	}
	if err := p.lexical.StartDTD(name, publicID, systemID); err != nil {
		return p.consumerError(err)
	}
	return nil
}

func (b *rawBridge) DoctypeEnd() error {
	p := b.p
	if p.lexical == nil {
		return nil
	}
	if err := p.lexical.EndDTD(); err != nil {
		return p.consumerError(err)
	}
	return nil
}

func (b *rawBridge) EntityRef(decl xmlpush.EntityDecl) error {
	return b.p.handleEntityRef(decl)
}

func (p *Parser) startElement(qname string, raw []xmlpush.RawAttr) error {
	p.updatePosition()

	var uri, local string
	if p.cfg.namespaces {
		var scope names.Scope
		for _, attr := range raw {
			name := string(attr.Name)
			if names.IsDefaultDecl(name) {
				scope.SetDefault(string(attr.Value))
				continue
			}
			if prefix, ok := names.IsPrefixDecl(name); ok {
				scope.SetPrefix(prefix, string(attr.Value))
			}
		}
		p.ns.Push(scope)
		var err error
		uri, local, err = p.ns.ResolveElement(qname)
		if err != nil {
			return p.malformedAt(fmt.Sprintf("element %s: %v", qname, err))
		}
	}

	entries := p.attrScratch[:0]
	for _, attr := range raw {
		name := string(attr.Name)
		entry := Attr{
			QName: name,
			Type:  attrTypeCDATA,
			Value: string(attr.Value),
		}
		if p.cfg.namespaces {
			if names.IsDefaultDecl(name) {
				continue
			}
			if _, ok := names.IsPrefixDecl(name); ok {
				continue
			}
			attrURI, attrLocal, err := p.ns.ResolveAttr(name)
			if err != nil {
				return p.malformedAt(fmt.Sprintf("attribute %s: %v", name, err))
			}
			entry.URI = attrURI
			entry.Local = attrLocal
		}
		entries = append(entries, entry)
	}
	p.attrScratch = entries

	p.elems = append(p.elems, elementName{uri: uri, local: local, qname: qname})

	if p.content == nil {
		return nil
	}

	p.nextGen++
	gen := p.nextGen
	p.liveGen = gen
	defer func() {
		// context teardown is unconditional: a held view goes stale even
		// when the handler fails
		p.liveGen = 0
	}()

	view := &Attributes{p: p, gen: gen, entries: entries}
	if err := p.content.StartElement(uri, local, qname, view); err != nil {
		return p.consumerError(err)
	}
	return nil
}

func (p *Parser) endElement() error {
	p.updatePosition()
	if len(p.elems) == 0 {
		return p.malformedAt("unexpected end element")
	}
	elem := p.elems[len(p.elems)-1]
	p.elems = p.elems[:len(p.elems)-1]

	var err error
	if p.content != nil {
		if herr := p.content.EndElement(elem.uri, elem.local, elem.qname); herr != nil {
			err = p.consumerError(herr)
		}
	}
	if p.cfg.namespaces {
		p.ns.Pop()
	}
	return err
}

func (p *Parser) malformedAt(msg string) error {
	perr := saxerrors.New(saxerrors.ErrMalformed, msg)
	p.stamp(perr)
	return perr
}
