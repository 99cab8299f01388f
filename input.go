package sax

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// InputSource identifies one parse input. Exactly one representation is
// used per parse, checked in order: CharStream, Reader, Text, SystemID.
//
// Reader and SystemID inputs pass through charset detection and conversion;
// CharStream and Text are taken as already-decoded UTF-8 text and bypass it.
type InputSource struct {
	// PublicID and SystemID identify the document for diagnostics. For
	// SystemID-only sources the SystemID also locates the document.
	PublicID string
	SystemID string
	// Encoding overrides charset detection for byte streams.
	Encoding string

	CharStream io.Reader
	Reader     io.Reader
	Text       string
}

// ReaderInput wraps a byte stream.
func ReaderInput(r io.Reader) InputSource {
	return InputSource{Reader: r}
}

// CharInput wraps an already-decoded character stream.
func CharInput(r io.Reader) InputSource {
	return InputSource{CharStream: r}
}

// StringInput wraps an in-memory document.
func StringInput(text string) InputSource {
	return InputSource{Text: text}
}

// FileInput parses the file named by path, recording it as the system id.
func FileInput(path string) InputSource {
	return InputSource{SystemID: path}
}

// open resolves the source to a UTF-8 reader plus an optional closer for
// readers this package opened itself.
func (src InputSource) open(encoding string) (io.Reader, io.Closer, error) {
	if src.Encoding != "" {
		encoding = src.Encoding
	}
	switch {
	case src.CharStream != nil:
		return src.CharStream, nil, nil
	case src.Reader != nil:
		r, err := decodeReader(src.Reader, encoding)
		return r, nil, err
	case src.Text != "":
		return strings.NewReader(src.Text), nil, nil
	case src.SystemID != "":
		f, err := os.Open(systemIDPath(src.SystemID))
		if err != nil {
			return nil, nil, err
		}
		r, err := decodeReader(f, encoding)
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		return r, f, nil
	default:
		return nil, nil, fmt.Errorf("empty input source")
	}
}

// systemIDPath maps a system identifier to a local path. Only file paths
// and file:// URLs are supported; network resolution is out of scope.
func systemIDPath(systemID string) string {
	return strings.TrimPrefix(systemID, "file://")
}
