package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseNil(t *testing.T) {
	var p *Parse
	if got := p.Error(); got != "parse <nil>" {
		t.Fatalf("Error = %q", got)
	}
	if p.Unwrap() != nil {
		t.Fatalf("Unwrap = %v, want nil", p.Unwrap())
	}
}

func TestParseFormatting(t *testing.T) {
	p := &Parse{
		Code:     ErrMalformed,
		Message:  "mismatched end element",
		SystemID: "doc.xml",
		Line:     4,
		Column:   7,
	}
	got := p.Error()
	for _, want := range []string{"sax-malformed", "mismatched end element", "doc.xml", "line 4", "column 7"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Error = %q, want substring %q", got, want)
		}
	}
}

func TestParseFormattingWithoutPosition(t *testing.T) {
	p := New(ErrUsage, "parser already closed")
	got := p.Error()
	if strings.Contains(got, "line") {
		t.Fatalf("Error = %q, position should be omitted", got)
	}
}

func TestParseUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	p := &Parse{Code: ErrConsumer, Message: "handler failed", Err: cause}
	if !stderrors.Is(p, cause) {
		t.Fatalf("Is(cause) = false for %v", p)
	}
}

func TestParseIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(ErrUsage, "parse called twice"))
	if !stderrors.Is(err, &Parse{Code: ErrUsage}) {
		t.Fatal("Is by code = false")
	}
	if stderrors.Is(err, &Parse{Code: ErrMalformed}) {
		t.Fatal("Is matched a different code")
	}
}

func TestAsParse(t *testing.T) {
	inner := Newf(ErrEntityResolution, "entity %s", "chap1")
	wrapped := fmt.Errorf("parse failed: %w", inner)
	p, ok := AsParse(wrapped)
	if !ok || p != inner {
		t.Fatalf("AsParse = (%v, %v)", p, ok)
	}
	if _, ok := AsParse(stderrors.New("plain")); ok {
		t.Fatal("AsParse matched a plain error")
	}
	if _, ok := AsParse(nil); ok {
		t.Fatal("AsParse matched nil")
	}
}

func TestCodeOf(t *testing.T) {
	if code := CodeOf(New(ErrEncoding, "bad label")); code != ErrEncoding {
		t.Fatalf("CodeOf = %q", code)
	}
	if code := CodeOf(stderrors.New("plain")); code != "" {
		t.Fatalf("CodeOf(plain) = %q", code)
	}
}
