package sax_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/sax"
	saxerrors "github.com/jacoelho/sax/errors"
)

// mapResolver serves entity replacement text from memory, keyed by system
// identifier. A nil map entry falls through to default resolution.
type mapResolver struct {
	docs map[string]string
	fail error
}

func (r mapResolver) ResolveEntity(publicID, systemID string) (io.ReadCloser, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	if text, ok := r.docs[systemID]; ok {
		return io.NopCloser(strings.NewReader(text)), nil
	}
	return nil, nil
}

func TestExternalEntityInterleaved(t *testing.T) {
	log := &eventLog{}
	p := sax.NewParser()
	p.SetContentHandler(log)
	p.SetEntityResolver(mapResolver{docs: map[string]string{
		"frag.xml": `<b>in</b>`,
	}})

	doc := `<!DOCTYPE a [<!ENTITY e SYSTEM "frag.xml">]><a>x&e;y</a>`
	require.NoError(t, p.Parse(sax.StringInput(doc)))
	require.Equal(t, []string{
		"locator",
		"startDocument",
		`start a uri="" local="a"`,
		"chars x",
		`start b uri="" local="b"`,
		"chars in",
		"end b",
		"chars y",
		"end a",
		"endDocument",
	}, log.events)
}

func TestEntityResolutionFailureIsNonFatal(t *testing.T) {
	log := &eventLog{}
	p := sax.NewParser()
	p.SetContentHandler(log)
	p.SetErrorHandler(log)
	p.SetEntityResolver(mapResolver{fail: errors.New("no such entity")})

	doc := `<!DOCTYPE a [<!ENTITY e SYSTEM "frag.xml">]><a>x&e;y</a>`
	require.NoError(t, p.Parse(sax.StringInput(doc)), "unresolved entity does not abort the parse")

	require.Len(t, log.errs, 1)
	perr := log.errs[0]
	assert.Equal(t, saxerrors.ErrEntityResolution, perr.Code)
	assert.Equal(t, "frag.xml", perr.SystemID)
	assert.Positive(t, perr.Line)

	// content on both sides of the reference still arrives
	assert.Contains(t, log.events, "chars xy")
	assert.Contains(t, log.events, "end a")
}

func TestEntityResolutionFailureEscalates(t *testing.T) {
	log := &eventLog{escalate: true}
	p := sax.NewParser()
	p.SetContentHandler(log)
	p.SetErrorHandler(log)
	p.SetEntityResolver(mapResolver{fail: errors.New("no such entity")})

	doc := `<!DOCTYPE a [<!ENTITY e SYSTEM "frag.xml">]><a>x&e;y</a>`
	err := p.Parse(sax.StringInput(doc))
	require.Error(t, err)
	assert.Equal(t, saxerrors.ErrEntityResolution, saxerrors.CodeOf(err))
	assert.NotContains(t, log.events, "end a")
}

func TestMalformedEntityContentIsFatal(t *testing.T) {
	log := &eventLog{}
	p := sax.NewParser()
	p.SetContentHandler(log)
	p.SetEntityResolver(mapResolver{docs: map[string]string{
		"frag.xml": `<b>unclosed`,
	}})

	doc := `<!DOCTYPE a [<!ENTITY e SYSTEM "frag.xml">]><a>x&e;y</a>`
	err := p.Parse(sax.StringInput(doc))
	require.Error(t, err)

	perr, ok := saxerrors.AsParse(err)
	require.True(t, ok)
	assert.Equal(t, saxerrors.ErrMalformed, perr.Code)
	assert.Equal(t, "frag.xml", perr.SystemID,
		"failure is attributed to the entity, not the document")
}

func TestEntityFileResolution(t *testing.T) {
	dir := t.TempDir()
	fragPath := filepath.Join(dir, "frag.xml")
	require.NoError(t, os.WriteFile(fragPath, []byte(`<b>ok</b>`), 0o644))

	docPath := filepath.Join(dir, "doc.xml")
	doc := `<!DOCTYPE a [<!ENTITY e SYSTEM "frag.xml">]><a>[&e;]</a>`
	require.NoError(t, os.WriteFile(docPath, []byte(doc), 0o644))

	log := &eventLog{}
	require.NoError(t, sax.ParseFile(docPath, log))
	require.Equal(t, []string{
		"locator",
		"startDocument",
		"startDTD a",
		"endDTD",
		`start a uri="" local="a"`,
		"chars [",
		`start b uri="" local="b"`,
		"chars ok",
		"end b",
		"chars ]",
		"end a",
		"endDocument",
	}, log.events)
}

func TestNetworkEntityRejected(t *testing.T) {
	log := &eventLog{}
	p := sax.NewParser()
	p.SetContentHandler(log)
	p.SetErrorHandler(log)

	doc := `<!DOCTYPE a [<!ENTITY e SYSTEM "http://example.com/f.xml">]><a>&e;</a>`
	require.NoError(t, p.Parse(sax.StringInput(doc)))

	require.Len(t, log.errs, 1)
	assert.Equal(t, saxerrors.ErrEntityResolution, log.errs[0].Code)
	assert.Contains(t, log.errs[0].Message, "network")
}
