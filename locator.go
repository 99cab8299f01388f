package sax

// Locator reports the parser's current document position. It is always
// readable while a parse is in progress and returns the last known position
// after completion. It never blocks and never fails.
type Locator interface {
	Line() int
	Column() int
	PublicID() string
	SystemID() string
}

// documentLocator reads position live from the owning parser.
type documentLocator struct {
	p *Parser
}

func (l documentLocator) Line() int {
	if l.p == nil {
		return 0
	}
	if l.p.engine != nil && !l.p.engine.Released() {
		return l.p.engine.Line()
	}
	return l.p.lastLine
}

func (l documentLocator) Column() int {
	if l.p == nil {
		return 0
	}
	if l.p.engine != nil && !l.p.engine.Released() {
		return l.p.engine.Column()
	}
	return l.p.lastColumn
}

func (l documentLocator) PublicID() string {
	if l.p == nil {
		return ""
	}
	return l.p.publicID
}

func (l documentLocator) SystemID() string {
	if l.p == nil {
		return ""
	}
	return l.p.systemID
}
