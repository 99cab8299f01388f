package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a parse failure.
type ErrorCode string

const (
	// ErrMalformed indicates a well-formedness violation reported by the
	// tokenizing engine.
	ErrMalformed ErrorCode = "sax-malformed"
	// ErrEncoding indicates an unsupported or mismatched character encoding.
	ErrEncoding ErrorCode = "sax-encoding"
	// ErrStaleAttributes indicates attribute access outside the owning
	// start-element callback.
	ErrStaleAttributes ErrorCode = "sax-stale-attributes"
	// ErrUsage indicates a parser misuse: Parse called twice, or after Close.
	ErrUsage ErrorCode = "sax-usage"
	// ErrEntityResolution indicates an external entity stream could not be
	// obtained or parsed.
	ErrEntityResolution ErrorCode = "sax-entity-unresolved"
	// ErrConsumer indicates the registered handler failed during a callback.
	ErrConsumer ErrorCode = "sax-consumer"
	// ErrInput indicates the input stream failed mid-parse.
	ErrInput ErrorCode = "sax-input"
)

// Parse describes a parse failure with its document position and the
// public/system identifiers of the input that produced it.
//
//nolint:errname // public API name uses SAX domain term.
type Parse struct {
	Code     ErrorCode
	Message  string
	PublicID string
	SystemID string
	Line     int
	Column   int
	Err      error
}

// Error formats the failure with code, message, and position.
func (p *Parse) Error() string {
	if p == nil {
		return "parse <nil>"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", p.Code, p.Message))
	if p.SystemID != "" {
		b.WriteString(fmt.Sprintf(" in %s", p.SystemID))
	}
	if p.Line > 0 && p.Column > 0 {
		b.WriteString(fmt.Sprintf(" at line %d, column %d", p.Line, p.Column))
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (p *Parse) Unwrap() error {
	if p == nil {
		return nil
	}
	return p.Err
}

// Is matches against another Parse by code, so callers can test
// errors.Is(err, &Parse{Code: ErrUsage}).
func (p *Parse) Is(target error) bool {
	var other *Parse
	if !errors.As(target, &other) {
		return false
	}
	return p != nil && other != nil && p.Code == other.Code
}

// New builds a Parse error with a code and message.
func New(code ErrorCode, msg string) *Parse {
	return &Parse{Code: code, Message: msg}
}

// Newf formats a message and builds a Parse error.
func Newf(code ErrorCode, format string, args ...any) *Parse {
	return &Parse{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsParse extracts a Parse error from err.
func AsParse(err error) (*Parse, bool) {
	if err == nil {
		return nil, false
	}
	var p *Parse
	if errors.As(err, &p) && p != nil {
		return p, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or "" when err is not a Parse.
func CodeOf(err error) ErrorCode {
	if p, ok := AsParse(err); ok {
		return p.Code
	}
	return ""
}
