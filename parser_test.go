package sax_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/sax"
	saxerrors "github.com/jacoelho/sax/errors"
)

// eventLog records handler callbacks as strings, coalescing adjacent
// character data. Hooks allow tests to observe or fail inside callbacks.
type eventLog struct {
	events  []string
	locator sax.Locator

	onStart func(uri, local, qname string, attrs *sax.Attributes) error
	onChars func(data []byte) error

	errs     []*saxerrors.Parse
	warnings []*saxerrors.Parse
	escalate bool
}

func (l *eventLog) SetDocumentLocator(loc sax.Locator) {
	l.locator = loc
	l.events = append(l.events, "locator")
}

func (l *eventLog) StartDocument() error {
	l.events = append(l.events, "startDocument")
	return nil
}

func (l *eventLog) EndDocument() error {
	l.events = append(l.events, "endDocument")
	return nil
}

func (l *eventLog) StartElement(uri, local, qname string, attrs *sax.Attributes) error {
	l.events = append(l.events, fmt.Sprintf("start %s uri=%q local=%q", qname, uri, local))
	if l.onStart != nil {
		return l.onStart(uri, local, qname, attrs)
	}
	return nil
}

func (l *eventLog) EndElement(uri, local, qname string) error {
	l.events = append(l.events, "end "+qname)
	return nil
}

func (l *eventLog) Characters(data []byte) error {
	if n := len(l.events); n > 0 && strings.HasPrefix(l.events[n-1], "chars ") {
		l.events[n-1] += string(data)
	} else {
		l.events = append(l.events, "chars "+string(data))
	}
	if l.onChars != nil {
		return l.onChars(data)
	}
	return nil
}

func (l *eventLog) ProcessingInstruction(target, data string) error {
	l.events = append(l.events, fmt.Sprintf("pi %s %s", target, data))
	return nil
}

func (l *eventLog) Comment(data []byte) error {
	l.events = append(l.events, "comment "+string(data))
	return nil
}

func (l *eventLog) StartDTD(name, publicID, systemID string) error {
	l.events = append(l.events, "startDTD "+name)
	return nil
}

func (l *eventLog) EndDTD() error {
	l.events = append(l.events, "endDTD")
	return nil
}

func (l *eventLog) Warning(perr *saxerrors.Parse) error {
	l.warnings = append(l.warnings, perr)
	return nil
}

func (l *eventLog) Error(perr *saxerrors.Parse) error {
	l.errs = append(l.errs, perr)
	if l.escalate {
		return perr
	}
	return nil
}

func TestParseEventSequence(t *testing.T) {
	log := &eventLog{}
	err := sax.ParseString(`<a><b>one</b><c><d/>two</c></a>`, log)
	require.NoError(t, err)
	require.Equal(t, []string{
		"locator",
		"startDocument",
		`start a uri="" local="a"`,
		`start b uri="" local="b"`,
		"chars one",
		"end b",
		`start c uri="" local="c"`,
		`start d uri="" local="d"`,
		"end d",
		"chars two",
		"end c",
		"end a",
		"endDocument",
	}, log.events)
}

func TestBalancedNesting(t *testing.T) {
	log := &eventLog{}
	err := sax.ParseString(`<r><x><y/></x><x/></r>`, log)
	require.NoError(t, err)

	var stack []string
	for _, event := range log.events {
		switch {
		case strings.HasPrefix(event, "start "):
			name := strings.Fields(event)[1]
			stack = append(stack, name)
		case strings.HasPrefix(event, "end "):
			name := strings.TrimPrefix(event, "end ")
			require.NotEmpty(t, stack, "end %s with no open element", name)
			require.Equal(t, stack[len(stack)-1], name, "ends must be LIFO")
			stack = stack[:len(stack)-1]
		}
	}
	require.Empty(t, stack, "every start needs a matching end")
}

func TestAttributesInsideCallback(t *testing.T) {
	log := &eventLog{}
	log.onStart = func(uri, local, qname string, attrs *sax.Attributes) error {
		n, err := attrs.Len()
		require.NoError(t, err)
		require.Equal(t, 2, n)

		first, err := attrs.Get(0)
		require.NoError(t, err)
		assert.Equal(t, "a", first.QName)
		assert.Equal(t, "1", first.Value)
		assert.Equal(t, "CDATA", first.Type)

		second, err := attrs.Get(1)
		require.NoError(t, err)
		assert.Equal(t, "b", second.QName)
		assert.Equal(t, "2", second.Value)

		_, err = attrs.Get(2)
		require.Error(t, err)
		assert.Equal(t, saxerrors.ErrUsage, saxerrors.CodeOf(err))

		byName, found, err := attrs.ByQName("a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "1", byName.Value)

		_, found, err = attrs.ByQName("missing")
		require.NoError(t, err)
		assert.False(t, found, "absence is not an error")
		return nil
	}
	require.NoError(t, sax.ParseString(`<e a="1" b="2"/>`, log))
}

func TestStaleAttributeAccess(t *testing.T) {
	var held *sax.Attributes
	log := &eventLog{}
	log.onStart = func(uri, local, qname string, attrs *sax.Attributes) error {
		if held == nil {
			held = attrs
		} else {
			// reference held across callbacks is already stale
			_, err := held.Len()
			require.Error(t, err)
			assert.Equal(t, saxerrors.ErrStaleAttributes, saxerrors.CodeOf(err))
		}
		return nil
	}
	require.NoError(t, sax.ParseString(`<a x="1"><b y="2"/></a>`, log))
	require.NotNil(t, held)

	_, err := held.Len()
	require.Error(t, err)
	assert.Equal(t, saxerrors.ErrStaleAttributes, saxerrors.CodeOf(err))

	_, err = held.Get(0)
	assert.Equal(t, saxerrors.ErrStaleAttributes, saxerrors.CodeOf(err))

	_, _, err = held.ByQName("x")
	assert.Equal(t, saxerrors.ErrStaleAttributes, saxerrors.CodeOf(err))
}

func TestAttributesZeroValue(t *testing.T) {
	var attrs sax.Attributes
	_, err := attrs.Len()
	require.Error(t, err)
	assert.Equal(t, saxerrors.ErrUsage, saxerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "no current element")
}

func TestParserSingleUse(t *testing.T) {
	p := sax.NewParser()
	p.SetContentHandler(&eventLog{})
	require.NoError(t, p.Parse(sax.StringInput(`<a/>`)))

	err := p.Parse(sax.StringInput(`<a/>`))
	require.Error(t, err)
	assert.Equal(t, saxerrors.ErrUsage, saxerrors.CodeOf(err))
}

func TestCloseIdempotent(t *testing.T) {
	p := sax.NewParser()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "second close is a no-op")

	err := p.Parse(sax.StringInput(`<a/>`))
	require.Error(t, err)
	assert.Equal(t, saxerrors.ErrUsage, saxerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "closed")
}

func TestMalformedInput(t *testing.T) {
	log := &eventLog{}
	err := sax.ParseString(`<a><b></a></b>`, log)
	require.Error(t, err)

	perr, ok := saxerrors.AsParse(err)
	require.True(t, ok)
	assert.Equal(t, saxerrors.ErrMalformed, perr.Code)
	assert.Positive(t, perr.Line)
	assert.Positive(t, perr.Column)
}

func TestUnmatchedClosingTag(t *testing.T) {
	err := sax.ParseString(`</a>`, &eventLog{})
	require.Error(t, err)
	perr, ok := saxerrors.AsParse(err)
	require.True(t, ok)
	assert.Equal(t, saxerrors.ErrMalformed, perr.Code)
	assert.Positive(t, perr.Line)
	assert.Positive(t, perr.Column)
}

func TestConsumerErrorPropagates(t *testing.T) {
	boom := errors.New("handler gave up")
	log := &eventLog{}
	log.onChars = func([]byte) error { return boom }

	err := sax.ParseString(`<a>text</a>`, log)
	require.Error(t, err)
	assert.Equal(t, saxerrors.ErrConsumer, saxerrors.CodeOf(err))
	assert.ErrorIs(t, err, boom)
}

func TestConsumerParseErrorPreserved(t *testing.T) {
	deliberate := saxerrors.New(saxerrors.ErrUsage, "abort requested")
	log := &eventLog{}
	log.onStart = func(string, string, string, *sax.Attributes) error { return deliberate }

	err := sax.ParseString(`<a/>`, log)
	require.ErrorIs(t, err, deliberate)
}

func TestLocator(t *testing.T) {
	log := &eventLog{}
	var lineDuringChars int
	log.onChars = func([]byte) error {
		lineDuringChars = log.locator.Line()
		return nil
	}
	require.NoError(t, sax.ParseString("<a>\nhi</a>", log))

	assert.Equal(t, 2, lineDuringChars, "position readable during character data")
	assert.Positive(t, log.locator.Line(), "best-effort position after completion")
}

func TestLocatorSystemID(t *testing.T) {
	log := &eventLog{}
	src := sax.InputSource{Text: `<a/>`, SystemID: "doc.xml", PublicID: "-//T//EN"}
	require.NoError(t, sax.Parse(src, log))
	assert.Equal(t, "doc.xml", log.locator.SystemID())
	assert.Equal(t, "-//T//EN", log.locator.PublicID())
}

func TestNamespaces(t *testing.T) {
	log := &eventLog{}
	log.onStart = func(uri, local, qname string, attrs *sax.Attributes) error {
		if qname != "p:child" {
			return nil
		}
		n, err := attrs.Len()
		require.NoError(t, err)
		require.Equal(t, 2, n, "xmlns declarations are not attributes")

		plain, err := attrs.Get(0)
		require.NoError(t, err)
		assert.Equal(t, "", plain.URI, "unprefixed attributes take no namespace")
		assert.Equal(t, "a", plain.Local)

		prefixed, found, err := attrs.ByName("urn:p", "b")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "p:b", prefixed.QName)
		return nil
	}
	doc := `<root xmlns="urn:d" xmlns:p="urn:p"><p:child a="1" p:b="2"/></root>`
	require.NoError(t, sax.ParseString(doc, log))
	assert.Contains(t, log.events, `start root uri="urn:d" local="root"`)
	assert.Contains(t, log.events, `start p:child uri="urn:p" local="child"`)
}

func TestNamespacesDisabled(t *testing.T) {
	log := &eventLog{}
	log.onStart = func(uri, local, qname string, attrs *sax.Attributes) error {
		if qname != "p:child" {
			return nil
		}
		n, err := attrs.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}
	doc := `<root xmlns:p="urn:p"><p:child a="1"/></root>`
	require.NoError(t, sax.ParseString(doc, log, sax.WithNamespaces(false)))
	assert.Contains(t, log.events, `start p:child uri="" local=""`)
}

func TestUnboundPrefix(t *testing.T) {
	err := sax.ParseString(`<q:a/>`, &eventLog{})
	require.Error(t, err)
	assert.Equal(t, saxerrors.ErrMalformed, saxerrors.CodeOf(err))
}

func TestChunkedReaderMatchesString(t *testing.T) {
	doc := `<?xml version="1.0"?><r a="1&amp;2"><x>some text</x><!-- c --><y/></r>`

	whole := &eventLog{}
	require.NoError(t, sax.ParseString(doc, whole))

	chunked := &eventLog{}
	require.NoError(t, sax.Parse(
		sax.ReaderInput(strings.NewReader(doc)), chunked, sax.WithChunkSize(1)))

	require.Equal(t, whole.events, chunked.events)
}

func TestLexicalEvents(t *testing.T) {
	log := &eventLog{}
	doc := `<!DOCTYPE a [<!ENTITY e "v">]><a><!-- note --><?target data?>&e;</a>`
	require.NoError(t, sax.ParseString(doc, log))
	require.Equal(t, []string{
		"locator",
		"startDocument",
		"startDTD a",
		"endDTD",
		`start a uri="" local="a"`,
		"comment  note ",
		"pi target data",
		"chars v",
		"end a",
		"endDocument",
	}, log.events)
}

func TestExternalDTDSubsetWarning(t *testing.T) {
	log := &eventLog{}
	doc := `<!DOCTYPE a SYSTEM "a.dtd"><a/>`
	require.NoError(t, sax.ParseString(doc, log))
	require.Len(t, log.warnings, 1)
	assert.Contains(t, log.warnings[0].Message, "a.dtd")
}
