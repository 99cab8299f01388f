package sax

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	saxerrors "github.com/jacoelho/sax/errors"
	"github.com/jacoelho/sax/pkg/xmlpush"
)

// maxEntityNesting bounds entity-within-entity recursion.
const maxEntityNesting = 8

// handleEntityRef runs a nested sub-parse for an external entity reference.
// Failure to obtain the entity stream is non-fatal: it is routed to the
// error channel tagged with the entity's identifiers and parsing continues
// past the reference. Malformed content inside an obtained entity is fatal,
// like any other malformed input.
func (p *Parser) handleEntityRef(decl xmlpush.EntityDecl) error {
	systemID := p.resolveSystemID(decl.SystemID)

	if p.entityDepth >= maxEntityNesting {
		return p.reportError(p.entityError(decl, systemID,
			fmt.Errorf("entity nesting deeper than %d", maxEntityNesting)))
	}

	rc, err := p.openEntity(decl, systemID)
	if err != nil {
		return p.reportError(p.entityError(decl, systemID, err))
	}
	defer rc.Close()

	p.cfg.logger.Debug().
		Str("entity", decl.Name).
		Str("system_id", systemID).
		Msg("external entity sub-parse")

	child := p.childParser()
	defer child.Close()
	src := InputSource{
		PublicID: decl.PublicID,
		SystemID: systemID,
		Reader:   rc,
	}
	if err := child.Parse(src); err != nil {
		// fatal: the stream was obtained but its content failed
		return err
	}
	return nil
}

// childParser builds the delegate session: same configuration and handlers,
// independent engine handle and cursor, fragment rules.
func (p *Parser) childParser() *Parser {
	return &Parser{
		cfg:         p.cfg,
		content:     p.content,
		lexical:     p.lexical,
		errs:        p.errs,
		resolver:    p.resolver,
		fragment:    true,
		entityDepth: p.entityDepth + 1,
	}
}

// openEntity obtains the entity byte stream: registered resolver first,
// then file-relative resolution of the system identifier. Network schemes
// are out of scope.
func (p *Parser) openEntity(decl xmlpush.EntityDecl, systemID string) (io.ReadCloser, error) {
	if p.resolver != nil {
		rc, err := p.resolver.ResolveEntity(decl.PublicID, systemID)
		if err != nil {
			return nil, err
		}
		if rc != nil {
			return rc, nil
		}
	}
	if systemID == "" {
		return nil, fmt.Errorf("entity %s has no system identifier", decl.Name)
	}
	if hasNetworkScheme(systemID) {
		return nil, fmt.Errorf("network entity resolution not supported: %s", systemID)
	}
	f, err := os.Open(systemIDPath(systemID))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// resolveSystemID absolutizes an entity system identifier against the
// enclosing document's system identifier.
func (p *Parser) resolveSystemID(systemID string) string {
	if systemID == "" || hasNetworkScheme(systemID) {
		return systemID
	}
	path := systemIDPath(systemID)
	if filepath.IsAbs(path) || p.systemID == "" {
		return path
	}
	return filepath.Join(filepath.Dir(systemIDPath(p.systemID)), path)
}

func hasNetworkScheme(systemID string) bool {
	return strings.HasPrefix(systemID, "http://") || strings.HasPrefix(systemID, "https://") ||
		strings.HasPrefix(systemID, "ftp://")
}

func (p *Parser) entityError(decl xmlpush.EntityDecl, systemID string, cause error) *saxerrors.Parse {
	perr := saxerrors.Newf(saxerrors.ErrEntityResolution,
		"external entity %s: %v", decl.Name, cause)
	perr.PublicID = decl.PublicID
	perr.SystemID = systemID
	perr.Line = p.lastLine
	perr.Column = p.lastColumn
	perr.Err = cause
	return perr
}
