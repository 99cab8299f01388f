package sax

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	saxerrors "github.com/jacoelho/sax/errors"
)

const sniffLimit = 1024

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeReader wraps a byte stream so the engine only ever sees UTF-8.
// Detection order: byte order mark, explicit label, XML declaration
// encoding pseudo-attribute, UTF-8 default.
func decodeReader(r io.Reader, label string) (io.Reader, error) {
	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, bomUTF16LE) && !bytes.HasPrefix(head, bomUTF8):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		return transform.NewReader(rejoin(head, r), dec), nil
	case bytes.HasPrefix(head, bomUTF16BE):
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		return transform.NewReader(rejoin(head, r), dec), nil
	case bytes.HasPrefix(head, bomUTF8):
		head = head[len(bomUTF8):]
	}

	if label == "" {
		label = declaredEncoding(head)
	}
	if label == "" || isUTF8Label(label) {
		return rejoin(head, r), nil
	}

	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, saxerrors.Newf(saxerrors.ErrEncoding, "unsupported encoding %q", label)
	}
	return transform.NewReader(rejoin(head, r), enc.NewDecoder()), nil
}

func rejoin(head []byte, rest io.Reader) io.Reader {
	return io.MultiReader(bytes.NewReader(head), rest)
}

func isUTF8Label(label string) bool {
	return strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "us-ascii")
}

// declaredEncoding extracts the encoding pseudo-attribute from an XML
// declaration, if the input starts with one. Works only for
// ASCII-compatible encodings; UTF-16 inputs are caught by their BOM first.
func declaredEncoding(head []byte) string {
	if !bytes.HasPrefix(head, []byte("<?xml")) {
		return ""
	}
	end := bytes.Index(head, []byte("?>"))
	if end < 0 {
		end = len(head)
	}
	decl := head[:end]
	i := bytes.Index(decl, []byte("encoding"))
	if i < 0 {
		return ""
	}
	rest := decl[i+len("encoding"):]
	rest = bytes.TrimLeft(rest, " \t\r\n")
	if len(rest) == 0 || rest[0] != '=' {
		return ""
	}
	rest = bytes.TrimLeft(rest[1:], " \t\r\n")
	if len(rest) == 0 || (rest[0] != '"' && rest[0] != '\'') {
		return ""
	}
	quote := rest[0]
	close := bytes.IndexByte(rest[1:], quote)
	if close < 0 {
		return ""
	}
	return string(rest[1 : 1+close])
}
