package xmlpush

import "bytes"

// scanDoctype consumes a complete DOCTYPE declaration, reporting its name
// and external identifier and registering general entity declarations from
// the internal subset. Declarations other than <!ENTITY> are skipped.
func (e *Engine) scanDoctype(rest []byte) (int, error) {
	end := doctypeClose(rest)
	if end < 0 {
		return 0, nil
	}
	line, column := e.line, e.column
	if e.rootSeen || len(e.stack) > 0 {
		return 0, e.syntaxErrorAt(line, column, errMisplacedDoctype)
	}
	if e.doctypeSeen {
		return 0, e.syntaxErrorAt(line, column, errDuplicateDoctype)
	}
	e.doctypeSeen = true

	body := rest[len("<!DOCTYPE"):end]
	i := skipSpace(body, 0)
	if i == 0 {
		return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
	}
	n := nameLen(body[i:])
	if n == 0 {
		return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
	}
	name := string(body[i : i+n])
	i = skipSpace(body, i+n)

	publicID, systemID, next, err := parseExternalID(body, i)
	if err != nil {
		return 0, e.syntaxErrorAt(line, column, err)
	}
	i = skipSpace(body, next)

	var subset []byte
	if i < len(body) && body[i] == '[' {
		closeIdx := bytes.LastIndexByte(body, ']')
		if closeIdx < i {
			return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
		}
		subset = body[i+1 : closeIdx]
		i = skipSpace(body, closeIdx+1)
	}
	if i != len(body) {
		return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
	}

	total := end + 1
	e.advance(total)

	if err := e.cb.DoctypeStart(name, publicID, systemID); err != nil {
		return 0, err
	}
	if err := e.parseInternalSubset(subset, line, column); err != nil {
		return 0, err
	}
	if err := e.cb.DoctypeEnd(); err != nil {
		return 0, err
	}
	return total, nil
}

// doctypeClose finds the '>' ending the declaration, skipping quoted
// literals and the bracketed internal subset. Returns -1 when incomplete.
func doctypeClose(rest []byte) int {
	var quote byte
	depth := 0
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
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '>':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (e *Engine) parseInternalSubset(subset []byte, line, column int) error {
	i := 0
	for {
		i = skipSpace(subset, i)
		if i >= len(subset) {
			return nil
		}
		switch {
		case subset[i] == '%':
			// parameter entity reference; not expanded
			semi := bytes.IndexByte(subset[i:], ';')
			if semi < 0 {
				return e.syntaxErrorAt(line, column, errInvalidDoctype)
			}
			i += semi + 1
		case bytes.HasPrefix(subset[i:], []byte("<!--")):
			end := bytes.Index(subset[i:], []byte("-->"))
			if end < 0 {
				return e.syntaxErrorAt(line, column, errInvalidComment)
			}
			i += end + len("-->")
		case bytes.HasPrefix(subset[i:], []byte("<?")):
			end := bytes.Index(subset[i:], []byte("?>"))
			if end < 0 {
				return e.syntaxErrorAt(line, column, errInvalidPI)
			}
			i += end + len("?>")
		case bytes.HasPrefix(subset[i:], []byte("<!ENTITY")):
			next, err := e.parseEntityDecl(subset, i+len("<!ENTITY"), line, column)
			if err != nil {
				return err
			}
			i = next
		case bytes.HasPrefix(subset[i:], []byte("<!")):
			// ELEMENT, ATTLIST, NOTATION: skipped
			end := declClose(subset[i:])
			if end < 0 {
				return e.syntaxErrorAt(line, column, errInvalidDoctype)
			}
			i += end + 1
		default:
			return e.syntaxErrorAt(line, column, errInvalidDoctype)
		}
	}
}

func (e *Engine) parseEntityDecl(subset []byte, i, line, column int) (int, error) {
	start := i
	i = skipSpace(subset, i)
	if i == start || i >= len(subset) {
		return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
	}
	if subset[i] == '%' {
		// parameter entity declaration; recorded nowhere
		end := declClose(subset[i:])
		if end < 0 {
			return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
		}
		return i + end + 1, nil
	}

	n := nameLen(subset[i:])
	if n == 0 {
		return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
	}
	name := string(subset[i : i+n])
	i = skipSpace(subset, i+n)
	if i >= len(subset) {
		return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
	}

	decl := EntityDecl{Name: name}
	switch {
	case subset[i] == '"' || subset[i] == '\'':
		value, next, ok := parseQuoted(subset, i)
		if !ok {
			return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
		}
		decl.Value = value
		i = next
	case bytes.HasPrefix(subset[i:], []byte("SYSTEM")):
		i = skipSpace(subset, i+len("SYSTEM"))
		value, next, ok := parseQuoted(subset, i)
		if !ok {
			return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
		}
		decl.SystemID = value
		decl.External = true
		i = next
	case bytes.HasPrefix(subset[i:], []byte("PUBLIC")):
		i = skipSpace(subset, i+len("PUBLIC"))
		public, next, ok := parseQuoted(subset, i)
		if !ok {
			return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
		}
		i = skipSpace(subset, next)
		system, next, ok := parseQuoted(subset, i)
		if !ok {
			return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
		}
		decl.PublicID = public
		decl.SystemID = system
		decl.External = true
		i = next
	default:
		return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
	}

	i = skipSpace(subset, i)
	// optional NDATA for unparsed entities; the notation name is skipped
	if bytes.HasPrefix(subset[i:], []byte("NDATA")) {
		i = skipSpace(subset, i+len("NDATA"))
		n := nameLen(subset[i:])
		if n == 0 {
			return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
		}
		i = skipSpace(subset, i+n)
	}
	if i >= len(subset) || subset[i] != '>' {
		return 0, e.syntaxErrorAt(line, column, errInvalidDoctype)
	}

	// first declaration binds, per XML 1.0 section 4.2
	if _, exists := e.entities[name]; !exists {
		e.entities[name] = decl
	}
	return i + 1, nil
}

// declClose finds the '>' ending a markup declaration, skipping quoted
// literals. Returns -1 when unterminated.
func declClose(data []byte) int {
	var quote byte
	for i := 0; i < len(data); i++ {
		b := data[i]
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

func parseExternalID(body []byte, i int) (publicID, systemID string, next int, err error) {
	switch {
	case bytes.HasPrefix(body[i:], []byte("SYSTEM")):
		i = skipSpace(body, i+len("SYSTEM"))
		value, n, ok := parseQuoted(body, i)
		if !ok {
			return "", "", 0, errInvalidDoctype
		}
		return "", value, n, nil
	case bytes.HasPrefix(body[i:], []byte("PUBLIC")):
		i = skipSpace(body, i+len("PUBLIC"))
		public, n, ok := parseQuoted(body, i)
		if !ok {
			return "", "", 0, errInvalidDoctype
		}
		i = skipSpace(body, n)
		system, n, ok := parseQuoted(body, i)
		if !ok {
			return "", "", 0, errInvalidDoctype
		}
		return public, system, n, nil
	default:
		return "", "", i, nil
	}
}

func parseQuoted(data []byte, i int) (string, int, bool) {
	if i >= len(data) || (data[i] != '"' && data[i] != '\'') {
		return "", 0, false
	}
	quote := data[i]
	end := bytes.IndexByte(data[i+1:], quote)
	if end < 0 {
		return "", 0, false
	}
	return string(data[i+1 : i+1+end]), i + 1 + end + 1, true
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && isWhitespace(data[i]) {
		i++
	}
	return i
}
