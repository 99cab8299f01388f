package xmlpush

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineReleased is returned by Feed after Release has been called.
	ErrEngineReleased = errors.New("engine already released")

	errNilCallbacks       = errors.New("nil engine callbacks")
	errUnexpectedEOF      = errors.New("unexpected EOF")
	errInvalidName        = errors.New("invalid XML name")
	errInvalidEntity      = errors.New("invalid entity reference")
	errInvalidCharRef     = errors.New("invalid character reference")
	errInvalidChar        = errors.New("invalid XML character")
	errInvalidToken       = errors.New("invalid XML token")
	errInvalidComment     = errors.New("invalid XML comment")
	errInvalidPI          = errors.New("invalid XML processing instruction")
	errInvalidAttr        = errors.New("invalid attribute syntax")
	errInvalidDoctype     = errors.New("invalid DOCTYPE declaration")
	errDepthLimit         = errors.New("element depth exceeds MaxDepth")
	errAttrLimit          = errors.New("attribute count exceeds MaxAttrs")
	errDuplicateAttr      = errors.New("duplicate attribute name")
	errMismatchedEndTag   = errors.New("mismatched end element")
	errMultipleRoots      = errors.New("multiple root elements")
	errContentOutsideRoot = errors.New("content outside root element")
	errMissingRoot        = errors.New("missing root element")
	errMisplacedXMLDecl   = errors.New("XML declaration not at start")
	errMisplacedDoctype   = errors.New("DOCTYPE after root element")
	errDuplicateDoctype   = errors.New("duplicate DOCTYPE declaration")
	errEntityInAttr       = errors.New("external entity reference not allowed here")
	errEntityDepth        = errors.New("entity expansion too deep")
)

// SyntaxError reports a well-formedness error with location context.
type SyntaxError struct {
	Offset int64
	Line   int
	Column int
	Err    error
}

// Error formats the syntax error with location and cause.
func (e *SyntaxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("xml syntax error at line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("xml syntax error at offset %d: %v", e.Offset, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SyntaxError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
