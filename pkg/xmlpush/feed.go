package xmlpush

import "bytes"

// run drains complete tokens from the buffer. Scan functions return the
// number of bytes they consumed; zero consumption with a nil error means the
// token is incomplete and more input is needed.
func (e *Engine) run() error {
	for e.pos < len(e.buf) {
		var n int
		var err error
		if e.buf[e.pos] == '<' {
			n, err = e.scanMarkup()
		} else {
			n, err = e.scanText()
		}
		if err != nil {
			return err
		}
		if n == 0 {
			if e.final {
				return e.syntaxError(errUnexpectedEOF)
			}
			return nil
		}
	}
	if e.final {
		return e.finish()
	}
	return nil
}

func (e *Engine) finish() error {
	if len(e.stack) > 0 {
		return e.syntaxError(errUnexpectedEOF)
	}
	if !e.opts.fragment && !e.rootSeen {
		return e.syntaxError(errMissingRoot)
	}
	return nil
}

// inContent reports whether character data is legal at the current point.
func (e *Engine) inContent() bool {
	return len(e.stack) > 0 || e.opts.fragment
}

// scanText handles character data up to the next '<'. When the chunk ends
// mid-run, a trailing '&' without its ';', a lone '\r', or a partial UTF-8
// sequence is held back until more input arrives.
func (e *Engine) scanText() (int, error) {
	rest := e.buf[e.pos:]
	end := bytes.IndexByte(rest, '<')
	complete := end >= 0
	if !complete {
		end = len(rest)
	}
	data := rest[:end]

	if !complete && !e.final {
		cut := textHoldback(data)
		if cut == 0 {
			return 0, nil
		}
		data = data[:cut]
		end = cut
	}

	line, column := e.line, e.column
	if !e.inContent() {
		if !isWhitespaceBytes(data) {
			if e.rootSeen {
				return 0, e.syntaxErrorAt(line, column, errMultipleRoots)
			}
			return 0, e.syntaxErrorAt(line, column, errContentOutsideRoot)
		}
		e.advance(end)
		return end, nil
	}

	e.advance(end)
	if err := e.emitText(data, line, column); err != nil {
		return 0, err
	}
	return end, nil
}

// textHoldback returns how much of a chunk-final text run can be processed
// now without splitting an entity reference, CR/LF pair, or UTF-8 rune.
func textHoldback(data []byte) int {
	if i := bytes.LastIndexByte(data, '&'); i >= 0 && bytes.IndexByte(data[i:], ';') < 0 {
		data = data[:i]
	}
	if len(data) > 0 && data[len(data)-1] == '\r' {
		data = data[:len(data)-1]
	}
	for i := len(data) - 1; i >= 0 && i >= len(data)-3; i-- {
		if data[i] >= 0xC0 {
			// start byte of a multi-byte sequence near the end; hold back
			// unless the sequence is already complete.
			want := 2
			switch {
			case data[i] >= 0xF0:
				want = 4
			case data[i] >= 0xE0:
				want = 3
			}
			if len(data)-i < want {
				data = data[:i]
			}
			break
		}
		if data[i] < 0x80 {
			break
		}
	}
	return len(data)
}

// emitText expands references in data, forwarding character data and
// external entity references in document order.
func (e *Engine) emitText(data []byte, line, column int) error {
	e.textBuf = e.textBuf[:0]
	flush := func() error {
		if len(e.textBuf) == 0 {
			return nil
		}
		if err := validateXMLChars(e.textBuf); err != nil {
			return e.syntaxErrorAt(line, column, err)
		}
		err := e.cb.Text(e.textBuf)
		e.textBuf = e.textBuf[:0]
		return err
	}

	for i := 0; i < len(data); {
		switch data[i] {
		case '&':
			ref, err := e.parseEntityRef(data[i:])
			if err != nil {
				return e.syntaxErrorAt(line, column, err)
			}
			if ref.external {
				if err := flush(); err != nil {
					return err
				}
				if err := e.cb.EntityRef(ref.decl); err != nil {
					return err
				}
			} else if containsAmp(ref.replacement) {
				e.textBuf, err = e.appendUnescaped(e.textBuf, []byte(ref.replacement), 1)
				if err != nil {
					return e.syntaxErrorAt(line, column, err)
				}
			} else {
				e.textBuf = append(e.textBuf, ref.replacement...)
			}
			i += ref.consumed
		case '\r':
			e.textBuf = append(e.textBuf, '\n')
			i++
			if i < len(data) && data[i] == '\n' {
				i++
			}
		case '>':
			if i >= 2 && data[i-1] == ']' && data[i-2] == ']' {
				return e.syntaxErrorAt(line, column, errInvalidToken)
			}
			e.textBuf = append(e.textBuf, '>')
			i++
		default:
			e.textBuf = append(e.textBuf, data[i])
			i++
		}
	}
	return flush()
}

// scanMarkup dispatches on the construct following '<'.
func (e *Engine) scanMarkup() (int, error) {
	rest := e.buf[e.pos:]
	if len(rest) < 2 {
		return 0, nil
	}
	switch rest[1] {
	case '?':
		return e.scanPI(rest)
	case '!':
		return e.scanDeclaration(rest)
	case '/':
		return e.scanEndTag(rest)
	default:
		return e.scanStartTag(rest)
	}
}

func (e *Engine) scanDeclaration(rest []byte) (int, error) {
	switch {
	case bytes.HasPrefix(rest, []byte("<!--")):
		return e.scanComment(rest)
	case bytes.HasPrefix(rest, []byte("<![CDATA[")):
		return e.scanCDATA(rest)
	case bytes.HasPrefix(rest, []byte("<!DOCTYPE")):
		return e.scanDoctype(rest)
	}
	// partial discriminator: wait for enough bytes to tell the forms apart
	for _, prefix := range [][]byte{[]byte("<!--"), []byte("<![CDATA["), []byte("<!DOCTYPE")} {
		if len(rest) < len(prefix) && bytes.HasPrefix(prefix, rest) {
			return 0, nil
		}
	}
	return 0, e.syntaxError(errInvalidToken)
}

func (e *Engine) scanComment(rest []byte) (int, error) {
	body := rest[len("<!--"):]
	end := bytes.Index(body, []byte("-->"))
	if end < 0 {
		return 0, nil
	}
	content := body[:end]
	line, column := e.line, e.column
	if bytes.Contains(content, []byte("--")) || (len(content) > 0 && content[len(content)-1] == '-') {
		return 0, e.syntaxErrorAt(line, column, errInvalidComment)
	}
	if err := validateXMLChars(content); err != nil {
		return 0, e.syntaxErrorAt(line, column, err)
	}
	total := len("<!--") + end + len("-->")
	e.advance(total)
	if err := e.cb.Comment(content); err != nil {
		return 0, err
	}
	return total, nil
}

func (e *Engine) scanCDATA(rest []byte) (int, error) {
	body := rest[len("<![CDATA["):]
	end := bytes.Index(body, []byte("]]>"))
	if end < 0 {
		return 0, nil
	}
	line, column := e.line, e.column
	if !e.inContent() {
		return 0, e.syntaxErrorAt(line, column, errContentOutsideRoot)
	}
	content := body[:end]
	if err := validateXMLChars(content); err != nil {
		return 0, e.syntaxErrorAt(line, column, err)
	}
	total := len("<![CDATA[") + end + len("]]>")
	e.advance(total)
	if len(content) > 0 {
		if err := e.cb.Text(content); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func (e *Engine) scanPI(rest []byte) (int, error) {
	body := rest[len("<?"):]
	end := bytes.Index(body, []byte("?>"))
	if end < 0 {
		return 0, nil
	}
	line, column := e.line, e.column
	content := body[:end]
	n := nameLen(content)
	if n == 0 {
		return 0, e.syntaxErrorAt(line, column, errInvalidPI)
	}
	target := content[:n]
	data := content[n:]
	if len(data) > 0 {
		if !isWhitespace(data[0]) {
			return 0, e.syntaxErrorAt(line, column, errInvalidPI)
		}
		data = bytes.TrimLeft(data, " \t\r\n")
	}
	if err := validateXMLChars(data); err != nil {
		return 0, e.syntaxErrorAt(line, column, err)
	}
	total := len("<?") + end + len("?>")

	if len(target) == 3 && (target[0] == 'x' || target[0] == 'X') &&
		(target[1] == 'm' || target[1] == 'M') && (target[2] == 'l' || target[2] == 'L') {
		// XML declaration: legal only as the very first bytes of input.
		if e.offset != 0 {
			return 0, e.syntaxErrorAt(line, column, errMisplacedXMLDecl)
		}
		e.xmlDeclDone = true
		e.advance(total)
		return total, nil
	}

	e.advance(total)
	if err := e.cb.PI(target, data); err != nil {
		return 0, err
	}
	return total, nil
}

func (e *Engine) scanEndTag(rest []byte) (int, error) {
	end := bytes.IndexByte(rest, '>')
	if end < 0 {
		return 0, nil
	}
	line, column := e.line, e.column
	name := bytes.TrimRight(rest[len("</"):end], " \t\r\n")
	if !validName(name) {
		return 0, e.syntaxErrorAt(line, column, errInvalidName)
	}
	if len(e.stack) == 0 || e.stack[len(e.stack)-1] != string(name) {
		return 0, e.syntaxErrorAt(line, column, errMismatchedEndTag)
	}
	e.stack = e.stack[:len(e.stack)-1]
	total := end + 1
	e.advance(total)
	if err := e.cb.EndTag(name); err != nil {
		return 0, err
	}
	return total, nil
}

// attrSpan records one parsed attribute before materialization: the name
// aliases the input buffer, the value is an offset range in textBuf (which
// may reallocate while later values are appended).
type attrSpan struct {
	name     []byte
	valStart int
	valEnd   int
}

func (e *Engine) scanStartTag(rest []byte) (int, error) {
	end := unquotedClose(rest)
	if end < 0 {
		return 0, nil
	}
	line, column := e.line, e.column

	body := rest[1:end]
	selfClosing := false
	if len(body) > 0 && body[len(body)-1] == '/' {
		selfClosing = true
		body = body[:len(body)-1]
	}

	n := nameLen(body)
	if n == 0 {
		return 0, e.syntaxErrorAt(line, column, errInvalidName)
	}
	name := body[:n]

	if !e.opts.fragment {
		if e.rootSeen && len(e.stack) == 0 {
			return 0, e.syntaxErrorAt(line, column, errMultipleRoots)
		}
		e.rootSeen = true
	}
	if len(e.stack)+1 > e.opts.maxDepth {
		return 0, e.syntaxErrorAt(line, column, errDepthLimit)
	}

	spans, err := e.parseAttrs(body[n:], line, column)
	if err != nil {
		return 0, err
	}

	e.attrs = e.attrs[:0]
	for _, span := range spans {
		e.attrs = append(e.attrs, RawAttr{
			Name:  span.name,
			Value: e.textBuf[span.valStart:span.valEnd],
		})
	}

	if !selfClosing {
		e.stack = append(e.stack, string(name))
	}
	total := end + 1
	e.advance(total)
	if err := e.cb.StartTag(name, e.attrs, selfClosing); err != nil {
		return 0, err
	}
	if selfClosing {
		if err := e.cb.EndTag(name); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func (e *Engine) parseAttrs(body []byte, line, column int) ([]attrSpan, error) {
	var spans []attrSpan
	e.textBuf = e.textBuf[:0]
	i := 0
	for {
		for i < len(body) && isWhitespace(body[i]) {
			i++
		}
		if i == len(body) {
			return spans, nil
		}
		n := nameLen(body[i:])
		if n == 0 {
			return nil, e.syntaxErrorAt(line, column, errInvalidAttr)
		}
		name := body[i : i+n]
		i += n
		for i < len(body) && isWhitespace(body[i]) {
			i++
		}
		if i == len(body) || body[i] != '=' {
			return nil, e.syntaxErrorAt(line, column, errInvalidAttr)
		}
		i++
		for i < len(body) && isWhitespace(body[i]) {
			i++
		}
		if i == len(body) || (body[i] != '"' && body[i] != '\'') {
			return nil, e.syntaxErrorAt(line, column, errInvalidAttr)
		}
		quote := body[i]
		i++
		close := bytes.IndexByte(body[i:], quote)
		if close < 0 {
			return nil, e.syntaxErrorAt(line, column, errInvalidAttr)
		}
		raw := body[i : i+close]
		i += close + 1

		if bytes.IndexByte(raw, '<') >= 0 {
			return nil, e.syntaxErrorAt(line, column, errInvalidAttr)
		}
		for _, prev := range spans {
			if bytes.Equal(prev.name, name) {
				return nil, e.syntaxErrorAt(line, column, errDuplicateAttr)
			}
		}
		if len(spans)+1 > e.opts.maxAttrs {
			return nil, e.syntaxErrorAt(line, column, errAttrLimit)
		}

		start := len(e.textBuf)
		buf, err := e.appendUnescaped(e.textBuf, normalizeAttrWhitespace(raw), 0)
		if err != nil {
			return nil, e.syntaxErrorAt(line, column, err)
		}
		e.textBuf = buf
		if err := validateXMLChars(e.textBuf[start:]); err != nil {
			return nil, e.syntaxErrorAt(line, column, err)
		}
		spans = append(spans, attrSpan{name: name, valStart: start, valEnd: len(e.textBuf)})
	}
}

// normalizeAttrWhitespace maps tab, CR, and LF in attribute values to
// spaces, per XML 1.0 section 3.3.3.
func normalizeAttrWhitespace(raw []byte) []byte {
	clean := true
	for _, b := range raw {
		if b == '\t' || b == '\r' || b == '\n' {
			clean = false
			break
		}
	}
	if clean {
		return raw
	}
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\t', '\n':
			out = append(out, ' ')
		case '\r':
			out = append(out, ' ')
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
		default:
			out = append(out, raw[i])
		}
	}
	return out
}

// unquotedClose finds the '>' ending a start tag, ignoring any inside
// quoted attribute values. Returns -1 when the tag is incomplete.
func unquotedClose(rest []byte) int {
	var quote byte
	for i := 1; i < len(rest); i++ {
		b := rest[i]
		if quote != 0 {
			if b == quote {
				quote = 0
			}
			continue
		}
		switch b {
		case '"', '\'':
			quote = b
		case '>':
			return i
		}
	}
	return -1
}
