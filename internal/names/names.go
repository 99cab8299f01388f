// Package names resolves XML qualified names against in-scope namespace
// declarations.
package names

import (
	"errors"
	"strings"
)

// Well-known namespaces.
const (
	XMLNamespace   = "http://www.w3.org/XML/1998/namespace"
	XMLNSNamespace = "http://www.w3.org/2000/xmlns/"
)

// ErrUnboundPrefix reports a prefixed name whose prefix has no in-scope
// namespace declaration.
var ErrUnboundPrefix = errors.New("unbound namespace prefix")

// Scope holds the namespace declarations introduced by one element.
type Scope struct {
	prefixes   map[string]string
	defaultNS  string
	defaultSet bool
}

// SetDefault records a default namespace declaration (xmlns="...").
func (s *Scope) SetDefault(uri string) {
	s.defaultNS = uri
	s.defaultSet = true
}

// SetPrefix records a prefixed declaration (xmlns:p="..."). Declarations of
// the reserved xml and xmlns prefixes are ignored.
func (s *Scope) SetPrefix(prefix, uri string) {
	if prefix == "xml" || prefix == "xmlns" {
		return
	}
	if s.prefixes == nil {
		s.prefixes = make(map[string]string, 1)
	}
	s.prefixes[prefix] = uri
}

// Stack tracks namespace scopes for the open element path.
type Stack struct {
	scopes []Scope
}

// Push enters the scope of a start element.
func (s *Stack) Push(scope Scope) {
	s.scopes = append(s.scopes, scope)
}

// Pop leaves the scope of an end element.
func (s *Stack) Pop() {
	if len(s.scopes) == 0 {
		return
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// Depth reports the number of open scopes.
func (s *Stack) Depth() int {
	return len(s.scopes)
}

// Lookup resolves a prefix to a namespace URI. The empty prefix resolves to
// the innermost default namespace, or "" when none is declared.
func (s *Stack) Lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	if prefix == "xmlns" {
		return XMLNSNamespace, true
	}
	if prefix == "" {
		for i := len(s.scopes) - 1; i >= 0; i-- {
			if s.scopes[i].defaultSet {
				return s.scopes[i].defaultNS, true
			}
		}
		return "", true
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if ns, ok := s.scopes[i].prefixes[prefix]; ok {
			return ns, true
		}
	}
	return "", false
}

// Split separates a qualified name into prefix and local part.
func Split(qname string) (prefix, local string, hasPrefix bool) {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[:i], qname[i+1:], true
	}
	return "", qname, false
}

// IsDefaultDecl reports whether an attribute name declares the default
// namespace.
func IsDefaultDecl(name string) bool {
	return name == "xmlns"
}

// IsPrefixDecl reports whether an attribute name declares a namespace
// prefix, returning the declared prefix.
func IsPrefixDecl(name string) (string, bool) {
	if strings.HasPrefix(name, "xmlns:") {
		return name[len("xmlns:"):], true
	}
	return "", false
}

// ResolveElement resolves an element qualified name in the current scope.
func (s *Stack) ResolveElement(qname string) (uri, local string, err error) {
	prefix, local, hasPrefix := Split(qname)
	if !hasPrefix {
		uri, _ = s.Lookup("")
		return uri, local, nil
	}
	uri, ok := s.Lookup(prefix)
	if !ok {
		return "", "", ErrUnboundPrefix
	}
	return uri, local, nil
}

// ResolveAttr resolves an attribute qualified name. Unprefixed attributes
// have no namespace; xmlns declarations live in the xmlns namespace.
func (s *Stack) ResolveAttr(qname string) (uri, local string, err error) {
	prefix, local, hasPrefix := Split(qname)
	if !hasPrefix {
		if local == "xmlns" {
			return XMLNSNamespace, local, nil
		}
		return "", local, nil
	}
	if prefix == "xmlns" {
		return XMLNSNamespace, local, nil
	}
	uri, ok := s.Lookup(prefix)
	if !ok {
		return "", "", ErrUnboundPrefix
	}
	return uri, local, nil
}
