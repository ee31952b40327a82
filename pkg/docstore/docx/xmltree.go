package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type nodeKind int

const (
	elementNode nodeKind = iota
	textNode
	procInstNode
	commentNode
	directiveNode
)

// node is one XML token in a part. Element names keep their raw prefix in
// Name.Space so that a part round-trips with its original prefixes.
type node struct {
	kind     nodeKind
	name     xml.Name
	attr     []xml.Attr
	text     string
	parent   *node
	children []*node
}

func newElement(prefix, local string, attrs ...xml.Attr) *node {
	return &node{kind: elementNode, name: xml.Name{Space: prefix, Local: local}, attr: attrs}
}

func newText(s string) *node {
	return &node{kind: textNode, text: xmlSafe(s)}
}

// xmlSafe drops invalid UTF-8 and the runes XML 1.0 cannot carry, such as
// C0 controls other than tab, LF and CR
func xmlSafe(s string) string {
	clean := true
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !xmlChar(r, size) {
			clean = false
			break
		}
		i += size
	}
	if clean {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if xmlChar(r, size) {
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	return sb.String()
}

func xmlChar(r rune, size int) bool {
	if r == utf8.RuneError && size == 1 {
		return false
	}
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	}
	return r >= 0x10000 && r <= utf8.MaxRune
}

func attr(prefix, local, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Space: prefix, Local: local}, Value: value}
}

func (n *node) is(prefix, local string) bool {
	return n.kind == elementNode && n.name.Space == prefix && n.name.Local == local
}

func (n *node) getAttr(prefix, local string) (string, bool) {
	for _, a := range n.attr {
		if a.Name.Space == prefix && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (n *node) setAttr(prefix, local, value string) {
	for i, a := range n.attr {
		if a.Name.Space == prefix && a.Name.Local == local {
			n.attr[i].Value = value
			return
		}
	}
	n.attr = append(n.attr, attr(prefix, local, value))
}

func (n *node) appendChild(c *node) *node {
	c.parent = n
	n.children = append(n.children, c)
	return c
}

func (n *node) insertBefore(c, ref *node) {
	idx := n.indexOf(ref)
	if idx < 0 {
		n.appendChild(c)
		return
	}
	c.parent = n
	n.children = append(n.children, nil)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = c
}

func (n *node) indexOf(c *node) int {
	for i, child := range n.children {
		if child == c {
			return i
		}
	}
	return -1
}

// detach removes n from its parent
func (n *node) detach() {
	if n.parent == nil {
		return
	}
	p := n.parent
	if idx := p.indexOf(n); idx >= 0 {
		p.children = append(p.children[:idx], p.children[idx+1:]...)
	}
	n.parent = nil
}

func (n *node) childElements(prefix, local string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.is(prefix, local) {
			out = append(out, c)
		}
	}
	return out
}

func (n *node) firstChild(prefix, local string) *node {
	for _, c := range n.children {
		if c.is(prefix, local) {
			return c
		}
	}
	return nil
}

// descendants returns every element below n matching prefix:local, in document order
func (n *node) descendants(prefix, local string) []*node {
	var out []*node
	var walk func(*node)
	walk = func(cur *node) {
		for _, c := range cur.children {
			if c.is(prefix, local) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// charData concatenates the text children of n
func (n *node) charData() string {
	var sb strings.Builder
	for _, c := range n.children {
		if c.kind == textNode {
			sb.WriteString(c.text)
		}
	}
	return sb.String()
}

func (n *node) setCharData(s string) {
	for _, c := range n.children {
		c.parent = nil
	}
	n.children = nil
	if s != "" {
		n.appendChild(newText(s))
	}
}

// xmlPart is a parsed XML part of the package
type xmlPart struct {
	name string
	root *node // synthetic container holding the prolog and the document element
}

func (p *xmlPart) documentElement() *node {
	for _, c := range p.root.children {
		if c.kind == elementNode {
			return c
		}
	}
	return nil
}

// prefixFor returns the prefix the part binds to namespace, or fallback
func (p *xmlPart) prefixFor(namespace, fallback string) string {
	el := p.documentElement()
	if el == nil {
		return fallback
	}
	for _, a := range el.attr {
		if a.Name.Space == "xmlns" && a.Value == namespace {
			return a.Name.Local
		}
	}
	return fallback
}

var errMalformedXML = errors.New("malformed xml")

func parsePart(name string, data []byte) (*xmlPart, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	root := &node{kind: elementNode}
	cur := root
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", name, errMalformedXML, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &node{kind: elementNode, name: t.Name, attr: append([]xml.Attr(nil), t.Attr...)}
			cur.appendChild(el)
			cur = el
		case xml.EndElement:
			if cur == root || cur.name != t.Name {
				return nil, fmt.Errorf("%s: %w: unexpected end element %s", name, errMalformedXML, qualified(t.Name))
			}
			cur = cur.parent
		case xml.CharData:
			cur.appendChild(newText(string(t)))
		case xml.ProcInst:
			cur.appendChild(&node{kind: procInstNode, name: xml.Name{Local: t.Target}, text: string(t.Inst)})
		case xml.Comment:
			cur.appendChild(&node{kind: commentNode, text: string(t)})
		case xml.Directive:
			cur.appendChild(&node{kind: directiveNode, text: string(t)})
		}
	}
	if cur != root {
		return nil, fmt.Errorf("%s: %w: unclosed element %s", name, errMalformedXML, qualified(cur.name))
	}
	p := &xmlPart{name: name, root: root}
	if p.documentElement() == nil {
		return nil, fmt.Errorf("%s: %w: no document element", name, errMalformedXML)
	}
	return p, nil
}

func (p *xmlPart) bytes() []byte {
	var buf bytes.Buffer
	for _, c := range p.root.children {
		writeNode(&buf, c)
	}
	return buf.Bytes()
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;")
)

func writeNode(buf *bytes.Buffer, n *node) {
	switch n.kind {
	case textNode:
		textEscaper.WriteString(buf, xmlSafe(n.text))
	case procInstNode:
		fmt.Fprintf(buf, "<?%s %s?>", n.name.Local, n.text)
	case commentNode:
		fmt.Fprintf(buf, "<!--%s-->", n.text)
	case directiveNode:
		fmt.Fprintf(buf, "<!%s>", n.text)
	case elementNode:
		buf.WriteByte('<')
		buf.WriteString(qualified(n.name))
		for _, a := range n.attr {
			buf.WriteByte(' ')
			buf.WriteString(qualified(a.Name))
			buf.WriteString(`="`)
			attrEscaper.WriteString(buf, xmlSafe(a.Value))
			buf.WriteByte('"')
		}
		if len(n.children) == 0 {
			buf.WriteString("/>")
			return
		}
		buf.WriteByte('>')
		for _, c := range n.children {
			writeNode(buf, c)
		}
		buf.WriteString("</")
		buf.WriteString(qualified(n.name))
		buf.WriteByte('>')
	}
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}
