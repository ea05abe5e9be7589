package fetcher

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CharsetReader decodes non-UTF-8 XML (Big5, GB2312 and friends) through
// the WHATWG encoding index.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

// DefaultRowElements are tried in order when a source does not name its row element.
var DefaultRowElements = []string{"Row", "row", "record", "tender", "item", "entry"}

// XMLRow is one repeating element of an XML export.
type XMLRow struct {
	Fields map[string]string // child element (and attribute) values keyed by local name
	Raw    string            // the element re-serialised as XML
}

// xmlNode captures an arbitrary element tree.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

// StreamXMLRows decodes every element named rowName (or, when rowName is
// empty, the first of DefaultRowElements seen in the document) and sends
// each as a flattened XMLRow. Both channels are closed when processing completes.
func StreamXMLRows(ctx context.Context, r io.Reader, rowName string) (<-chan XMLRow, <-chan error) {
	outCh := make(chan XMLRow, 64)
	errCh := make(chan error, 1)

	candidates := DefaultRowElements
	if rowName != "" {
		candidates = []string{rowName}
	}

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := xml.NewDecoder(r)
		decoder.CharsetReader = CharsetReader
		decoder.Strict = false

		locked := ""
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok {
				continue
			}
			if locked == "" {
				for _, c := range candidates {
					if se.Name.Local == c {
						locked = c
						break
					}
				}
			}
			if locked == "" || se.Name.Local != locked {
				continue
			}

			var node xmlNode
			if err := decoder.DecodeElement(&node, &se); err != nil {
				errCh <- eris.Wrap(err, "xml: decode element")
				return
			}
			raw, err := xml.Marshal(node)
			if err != nil {
				errCh <- eris.Wrap(err, "xml: re-encode element")
				return
			}

			select {
			case outCh <- XMLRow{Fields: flattenNode(node), Raw: string(raw)}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// ReadXMLRows collects StreamXMLRows into a slice.
func ReadXMLRows(ctx context.Context, r io.Reader, rowName string) ([]XMLRow, error) {
	rowCh, errCh := StreamXMLRows(ctx, r, rowName)
	var rows []XMLRow
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// flattenNode maps leaf children to their text. Nested children are keyed
// by their own local name; the first occurrence wins. Row attributes are
// keyed "@name".
func flattenNode(n xmlNode) map[string]string {
	fields := make(map[string]string)
	for _, a := range n.Attrs {
		fields["@"+a.Name.Local] = a.Value
	}
	var walk func(nodes []xmlNode)
	walk = func(nodes []xmlNode) {
		for _, c := range nodes {
			if len(c.Nodes) > 0 {
				walk(c.Nodes)
				continue
			}
			key := c.XMLName.Local
			if _, seen := fields[key]; seen {
				continue
			}
			fields[key] = strings.TrimSpace(c.Content)
		}
	}
	walk(n.Nodes)
	return fields
}
