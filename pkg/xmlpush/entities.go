package xmlpush

import (
	"unicode/utf8"
)

// EntityDecl describes a general entity declared in the DOCTYPE internal
// subset. Internal entities carry Value; external entities carry PublicID
// and/or SystemID and an empty Value.
type EntityDecl struct {
	Name     string
	Value    string
	PublicID string
	SystemID string
	External bool
}

const maxEntityDepth = 16

var predefinedEntities = map[string]string{
	"lt":   "<",
	"gt":   ">",
	"amp":  "&",
	"apos": "'",
	"quot": `"`,
}

// entityRef is the decoded form of one &...; reference.
type entityRef struct {
	consumed    int
	replacement string
	decl        EntityDecl
	external    bool
}

// parseEntityRef decodes the entity or character reference starting at
// data[0], which must be '&'. The reference must be complete in data.
func (e *Engine) parseEntityRef(data []byte) (entityRef, error) {
	end := -1
	for i := 1; i < len(data); i++ {
		if data[i] == ';' {
			end = i
			break
		}
	}
	if end <= 1 {
		return entityRef{}, errInvalidEntity
	}
	body := data[1:end]
	consumed := end + 1

	if body[0] == '#' {
		r, err := parseCharRef(body[1:])
		if err != nil {
			return entityRef{}, err
		}
		var buf [utf8.UTFMax]byte
		n := utf8.EncodeRune(buf[:], r)
		return entityRef{consumed: consumed, replacement: string(buf[:n])}, nil
	}

	name := string(body)
	if !validName(body) {
		return entityRef{}, errInvalidEntity
	}
	if value, ok := predefinedEntities[name]; ok {
		return entityRef{consumed: consumed, replacement: value}, nil
	}
	if value, ok := e.opts.entityMap[name]; ok {
		return entityRef{consumed: consumed, replacement: value}, nil
	}
	if decl, ok := e.entities[name]; ok {
		if decl.External {
			return entityRef{consumed: consumed, decl: decl, external: true}, nil
		}
		return entityRef{consumed: consumed, replacement: decl.Value}, nil
	}
	return entityRef{}, errInvalidEntity
}

func parseCharRef(body []byte) (rune, error) {
	if len(body) == 0 {
		return 0, errInvalidCharRef
	}
	var value rune
	if body[0] == 'x' || body[0] == 'X' {
		digits := body[1:]
		if len(digits) == 0 || len(digits) > 6 {
			return 0, errInvalidCharRef
		}
		for _, b := range digits {
			var d rune
			switch {
			case b >= '0' && b <= '9':
				d = rune(b - '0')
			case b >= 'a' && b <= 'f':
				d = rune(b-'a') + 10
			case b >= 'A' && b <= 'F':
				d = rune(b-'A') + 10
			default:
				return 0, errInvalidCharRef
			}
			value = value<<4 | d
		}
	} else {
		if len(body) > 7 {
			return 0, errInvalidCharRef
		}
		for _, b := range body {
			if b < '0' || b > '9' {
				return 0, errInvalidCharRef
			}
			value = value*10 + rune(b-'0')
			if value > 0x10FFFF {
				return 0, errInvalidCharRef
			}
		}
	}
	if !isValidXMLChar(value) {
		return 0, errInvalidCharRef
	}
	return value, nil
}

// appendUnescaped expands character and internal entity references in data
// into dst. External entity references are rejected; they are only legal in
// element content, where the feed loop handles them before unescaping.
func (e *Engine) appendUnescaped(dst, data []byte, depth int) ([]byte, error) {
	if depth > maxEntityDepth {
		return dst, errEntityDepth
	}
	for i := 0; i < len(data); {
		if data[i] != '&' {
			dst = append(dst, data[i])
			i++
			continue
		}
		ref, err := e.parseEntityRef(data[i:])
		if err != nil {
			return dst, err
		}
		if ref.external {
			return dst, errEntityInAttr
		}
		if containsAmp(ref.replacement) {
			dst, err = e.appendUnescaped(dst, []byte(ref.replacement), depth+1)
			if err != nil {
				return dst, err
			}
		} else {
			dst = append(dst, ref.replacement...)
		}
		i += ref.consumed
	}
	return dst, nil
}

func containsAmp(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '&' {
			return true
		}
	}
	return false
}
