package sax

import (
	saxerrors "github.com/jacoelho/sax/errors"
)

// Attr is one attribute of the current element.
type Attr struct {
	URI   string
	Local string
	QName string
	Type  string
	Value string
}

// attrTypeCDATA is reported for every attribute; DTD attribute typing is
// not tracked.
const attrTypeCDATA = "CDATA"

// Attributes is a read-only view over the attribute set of the element
// currently being delivered through StartElement. The view borrows parser
// state: it is valid only until the owning callback returns, and every
// accessor checks that window before touching the backing data.
type Attributes struct {
	p       *Parser
	gen     uint64
	entries []Attr
}

// valid returns nil only while the owning start-element callback is live.
func (a *Attributes) valid() error {
	if a == nil || a.p == nil {
		return saxerrors.New(saxerrors.ErrUsage, "no current element")
	}
	if a.p.liveGen == 0 || a.p.liveGen != a.gen {
		return saxerrors.New(saxerrors.ErrStaleAttributes,
			"attributes accessed outside their start-element callback")
	}
	return nil
}

// Len reports the number of attributes on the current element.
func (a *Attributes) Len() (int, error) {
	if err := a.valid(); err != nil {
		return 0, err
	}
	return len(a.entries), nil
}

// Get returns the attribute at a zero-based index in document order.
func (a *Attributes) Get(index int) (Attr, error) {
	if err := a.valid(); err != nil {
		return Attr{}, err
	}
	if index < 0 || index >= len(a.entries) {
		return Attr{}, saxerrors.Newf(saxerrors.ErrUsage,
			"attribute index %d out of range [0, %d)", index, len(a.entries))
	}
	return a.entries[index], nil
}

// ByQName looks up an attribute by qualified name. Absence is not an error.
func (a *Attributes) ByQName(qname string) (Attr, bool, error) {
	if err := a.valid(); err != nil {
		return Attr{}, false, err
	}
	for _, entry := range a.entries {
		if entry.QName == qname {
			return entry, true, nil
		}
	}
	return Attr{}, false, nil
}

// ByName looks up an attribute by namespace URI and local name. Absence is
// not an error.
func (a *Attributes) ByName(uri, local string) (Attr, bool, error) {
	if err := a.valid(); err != nil {
		return Attr{}, false, err
	}
	for _, entry := range a.entries {
		if entry.URI == uri && entry.Local == local {
			return entry, true, nil
		}
	}
	return Attr{}, false, nil
}
