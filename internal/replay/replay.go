// Package replay renders parsed match trees as replay documents.
package replay

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/AkatukiSora/powerlog-replay/internal/parser"
)

// RootElement is the document element wrapping every match.
const RootElement = "HearthstoneReplay"

// tsAttr is the attribute carrying a node's line timestamp.
const tsAttr = "ts"

// Format selects the document encoding.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// ParseFormat maps a user supplied name to a Format. The empty string is XML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xml":
		return FormatXML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown render format %q", s)
	}
}

// Options controls document layout.
type Options struct {
	// Indent is repeated once per nesting level. Empty means a tab.
	Indent string
	// Compact disables indentation entirely.
	Compact bool
}

func (o Options) indent() string {
	if o.Compact {
		return ""
	}
	if o.Indent == "" {
		return "\t"
	}
	return o.Indent
}

// Render writes matches to w in the given format.
func Render(w io.Writer, f Format, matches []*parser.Match, opts Options) error {
	switch f {
	case FormatXML, "":
		return WriteXML(w, matches, opts)
	case FormatJSON:
		return WriteJSON(w, matches, opts)
	default:
		return fmt.Errorf("unknown render format %q", f)
	}
}

// WriteXML writes one element per node under a single RootElement. Null
// attributes are omitted and ts is only written for timestamp-bearing kinds.
func WriteXML(w io.Writer, matches []*parser.Match, opts Options) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if ind := opts.indent(); ind != "" {
		enc.Indent("", ind)
	}
	root := xml.StartElement{Name: xml.Name{Local: RootElement}}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for _, m := range matches {
		if m == nil || m.Root == nil {
			continue
		}
		if err := encodeNode(enc, m.Root); err != nil {
			return fmt.Errorf("match %d: %w", m.Ordinal, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func encodeNode(enc *xml.Encoder, n *parser.Node) error {
	start := xml.StartElement{Name: xml.Name{Local: n.Kind.String()}}
	if ts := timestamp(n); ts != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: tsAttr}, Value: ts})
	}
	for _, a := range n.Attributes() {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := encodeNode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

func timestamp(n *parser.Node) string {
	if !n.Kind.HasTimestamp() {
		return ""
	}
	return n.Timestamp
}

// jsonNode mirrors the XML element layout.
type jsonNode struct {
	Tag      string      `json:"tag"`
	TS       string      `json:"ts,omitempty"`
	Attrs    attrList    `json:"attrs,omitempty"`
	Children []*jsonNode `json:"children,omitempty"`
}

type jsonDocument struct {
	Replay []*jsonNode `json:"replay"`
}

// attrList marshals as an object whose keys keep catalog order.
type attrList []parser.Attribute

func (l attrList) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, a := range l {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(a.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(a.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func toJSON(n *parser.Node) *jsonNode {
	out := &jsonNode{Tag: n.Kind.String(), TS: timestamp(n)}
	if attrs := n.Attributes(); len(attrs) > 0 {
		out.Attrs = attrs
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, toJSON(c))
	}
	return out
}

// WriteJSON writes the same tree as WriteXML as nested objects.
func WriteJSON(w io.Writer, matches []*parser.Match, opts Options) error {
	doc := jsonDocument{Replay: make([]*jsonNode, 0, len(matches))}
	for _, m := range matches {
		if m == nil || m.Root == nil {
			continue
		}
		doc.Replay = append(doc.Replay, toJSON(m.Root))
	}
	enc := json.NewEncoder(w)
	if ind := opts.indent(); ind != "" {
		enc.SetIndent("", ind)
	}
	return enc.Encode(doc)
}

// RenderMatch renders a single match as a standalone XML document.
func RenderMatch(m *parser.Match) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXML(&buf, []*parser.Match{m}, Options{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MatchDigest returns a stable SHA-256 hex digest of the rendered match.
// Identical input always yields the same digest.
func MatchDigest(m *parser.Match) (string, error) {
	doc, err := RenderMatch(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:]), nil
}
