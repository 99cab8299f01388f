package sax

import (
	"io"

	saxerrors "github.com/jacoelho/sax/errors"
)

// ContentHandler receives document content events. A non-nil error return
// from any callback aborts the parse; the error is propagated to the Parse
// caller with guaranteed engine teardown.
type ContentHandler interface {
	// SetDocumentLocator installs the locator before any other event.
	// The locator stays usable for the lifetime of the parse.
	SetDocumentLocator(loc Locator)
	StartDocument() error
	EndDocument() error
	// StartElement delivers an element with its attribute view. attrs is
	// only valid until the callback returns; later access fails with a
	// stale-attributes error.
	StartElement(uri, local, qname string, attrs *Attributes) error
	EndElement(uri, local, qname string) error
	// Characters delivers character data. The slice aliases parser buffers
	// and is only valid during the callback.
	Characters(data []byte) error
	ProcessingInstruction(target, data string) error
}

// LexicalHandler receives events outside the core content model. Optional.
type LexicalHandler interface {
	Comment(data []byte) error
	StartDTD(name, publicID, systemID string) error
	EndDTD() error
}

// ErrorHandler receives non-fatal diagnostics. A non-nil return escalates
// the diagnostic to a fatal parse error. Optional; without a handler,
// non-fatal diagnostics are dropped and parsing continues.
type ErrorHandler interface {
	Warning(err *saxerrors.Parse) error
	Error(err *saxerrors.Parse) error
}

// EntityResolver maps an external entity's public/system identifiers to a
// byte stream. Returning (nil, nil) falls back to resolution relative to
// the enclosing document's system identifier.
type EntityResolver interface {
	ResolveEntity(publicID, systemID string) (io.ReadCloser, error)
}

// DefaultHandler is a no-op implementation of ContentHandler,
// LexicalHandler, and ErrorHandler, for embedding.
type DefaultHandler struct{}

// SetDocumentLocator implements ContentHandler.
func (DefaultHandler) SetDocumentLocator(Locator) {}

// StartDocument implements ContentHandler.
func (DefaultHandler) StartDocument() error { return nil }

// EndDocument implements ContentHandler.
func (DefaultHandler) EndDocument() error { return nil }

// StartElement implements ContentHandler.
func (DefaultHandler) StartElement(uri, local, qname string, attrs *Attributes) error { return nil }

// EndElement implements ContentHandler.
func (DefaultHandler) EndElement(uri, local, qname string) error { return nil }

// Characters implements ContentHandler.
func (DefaultHandler) Characters(data []byte) error { return nil }

// ProcessingInstruction implements ContentHandler.
func (DefaultHandler) ProcessingInstruction(target, data string) error { return nil }

// Comment implements LexicalHandler.
func (DefaultHandler) Comment(data []byte) error { return nil }

// StartDTD implements LexicalHandler.
func (DefaultHandler) StartDTD(name, publicID, systemID string) error { return nil }

// EndDTD implements LexicalHandler.
func (DefaultHandler) EndDTD() error { return nil }

// Warning implements ErrorHandler.
func (DefaultHandler) Warning(*saxerrors.Parse) error { return nil }

// Error implements ErrorHandler.
func (DefaultHandler) Error(*saxerrors.Parse) error { return nil }
