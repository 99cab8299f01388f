// Command saxdump parses an XML document and prints its event stream, one
// line per event. It exists mainly as a debugging aid for the parser.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/jacoelho/sax"
	saxerrors "github.com/jacoelho/sax/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	return runWithArgs(os.Args[1:], os.Stdout, os.Stderr)
}

// fileConfig mirrors the parser options that make sense in a config file.
type fileConfig struct {
	Encoding   string `toml:"encoding"`
	Namespaces *bool  `toml:"namespaces"`
	ChunkSize  int    `toml:"chunk_size"`
	MaxDepth   int    `toml:"max_depth"`
	MaxAttrs   int    `toml:"max_attrs"`
}

func runWithArgs(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("saxdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to TOML config file")
	encoding := fs.String("encoding", "", "input encoding override")
	noNamespaces := fs.Bool("no-namespaces", false, "disable namespace processing")
	verbose := fs.Bool("v", false, "enable debug logging")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: %s [options] <document.xml>\n\n", os.Args[0])
		_, _ = fmt.Fprintln(stderr, "Parses an XML document and prints its event stream.")
		_, _ = fmt.Fprintln(stderr)
		_, _ = fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 1 {
		_, _ = fmt.Fprintln(stderr, "error: exactly one XML file argument is required")
		fs.Usage()
		return 2
	}
	xmlPath := fs.Arg(0)

	var cfg fileConfig
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			_, _ = fmt.Fprintf(stderr, "error loading config: %v\n", err)
			return 1
		}
	}
	if *encoding != "" {
		cfg.Encoding = *encoding
	}
	if *noNamespaces {
		disabled := false
		cfg.Namespaces = &disabled
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Logger()
	}

	opts := []sax.Option{sax.WithLogger(logger)}
	if cfg.Encoding != "" {
		opts = append(opts, sax.WithEncoding(cfg.Encoding))
	}
	if cfg.Namespaces != nil {
		opts = append(opts, sax.WithNamespaces(*cfg.Namespaces))
	}
	if cfg.ChunkSize > 0 {
		opts = append(opts, sax.WithChunkSize(cfg.ChunkSize))
	}
	if cfg.MaxDepth > 0 {
		opts = append(opts, sax.WithMaxDepth(cfg.MaxDepth))
	}
	if cfg.MaxAttrs > 0 {
		opts = append(opts, sax.WithMaxAttrs(cfg.MaxAttrs))
	}

	dumper := &eventDumper{out: stdout, errOut: stderr}
	if err := sax.ParseFile(xmlPath, dumper, opts...); err != nil {
		if perr, ok := saxerrors.AsParse(err); ok {
			_, _ = fmt.Fprintln(stderr, perr.Error())
		} else {
			_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

// eventDumper prints one line per event, indented by element depth.
type eventDumper struct {
	out     io.Writer
	errOut  io.Writer
	locator sax.Locator
	depth   int
	err     error
}

func (d *eventDumper) emit(format string, args ...any) error {
	if d.err != nil {
		return d.err
	}
	for i := 0; i < d.depth; i++ {
		if _, err := fmt.Fprint(d.out, "  "); err != nil {
			d.err = err
			return err
		}
	}
	if _, err := fmt.Fprintf(d.out, format+"\n", args...); err != nil {
		d.err = err
	}
	return d.err
}

func (d *eventDumper) SetDocumentLocator(loc sax.Locator) {
	d.locator = loc
}

func (d *eventDumper) StartDocument() error {
	return d.emit("startDocument")
}

func (d *eventDumper) EndDocument() error {
	return d.emit("endDocument")
}

func (d *eventDumper) StartElement(uri, local, qname string, attrs *sax.Attributes) error {
	n, err := attrs.Len()
	if err != nil {
		return err
	}
	if err := d.emit("startElement qname=%q uri=%q local=%q (line %d)",
		qname, uri, local, d.locator.Line()); err != nil {
		return err
	}
	d.depth++
	for i := 0; i < n; i++ {
		attr, err := attrs.Get(i)
		if err != nil {
			return err
		}
		if err := d.emit("attribute %s=%q", attr.QName, attr.Value); err != nil {
			return err
		}
	}
	return nil
}

func (d *eventDumper) EndElement(uri, local, qname string) error {
	d.depth--
	return d.emit("endElement qname=%q", qname)
}

func (d *eventDumper) Characters(data []byte) error {
	return d.emit("characters %q", string(data))
}

func (d *eventDumper) ProcessingInstruction(target, data string) error {
	return d.emit("processingInstruction target=%q data=%q", target, data)
}

func (d *eventDumper) Comment(data []byte) error {
	return d.emit("comment %q", string(data))
}

func (d *eventDumper) StartDTD(name, publicID, systemID string) error {
	return d.emit("startDTD name=%q publicID=%q systemID=%q", name, publicID, systemID)
}

func (d *eventDumper) EndDTD() error {
	return d.emit("endDTD")
}

func (d *eventDumper) Warning(perr *saxerrors.Parse) error {
	_, _ = fmt.Fprintf(d.errOut, "warning: %s\n", perr.Error())
	return nil
}

func (d *eventDumper) Error(perr *saxerrors.Parse) error {
	_, _ = fmt.Fprintf(d.errOut, "error: %s\n", perr.Error())
	return nil
}
