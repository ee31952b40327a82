// Package docx reads and writes WordprocessingML packages.
//
// Only the parts needed for text work are parsed: the main document, the
// headers and footers it references and the core properties. Every other
// part is carried through Encode byte for byte.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

const (
	nsMain          = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsDC            = "http://purl.org/dc/elements/1.1/"

	mainPartName = "word/document.xml"
	corePartName = "docProps/core.xml"

	maxPartSize = 64 << 20
)

// ErrInvalid is returned when bytes are not a readable WordprocessingML package
var ErrInvalid = errors.New("docx: invalid document")

// Document is a decoded package
type Document struct {
	entries []*entry
	parts   map[string]*xmlPart
	main    *xmlPart
	w       string // prefix bound to the main namespace in the document part
	rels    map[string]string
}

type entry struct {
	name     string
	method   uint16
	modified time.Time
	data     []byte
}

// Decode parses a .docx package
func Decode(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	doc := &Document{parts: make(map[string]*xmlPart)}
	for _, f := range zr.File {
		if f.UncompressedSize64 > maxPartSize {
			return nil, fmt.Errorf("%w: part %s too large", ErrInvalid, f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, f.Name, err)
		}
		b, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, f.Name, err)
		}
		if len(b) > maxPartSize {
			return nil, fmt.Errorf("%w: part %s too large", ErrInvalid, f.Name)
		}
		doc.entries = append(doc.entries, &entry{name: f.Name, method: f.Method, modified: f.Modified, data: b})
	}

	main, err := doc.part(mainPartName)
	if err != nil {
		return nil, err
	}
	doc.main = main
	doc.w = main.prefixFor(nsMain, "w")
	root := main.documentElement()
	if !root.is(doc.w, "document") || root.firstChild(doc.w, "body") == nil {
		return nil, fmt.Errorf("%w: %s has no document body", ErrInvalid, mainPartName)
	}

	doc.rels, err = doc.readRelationships("word/_rels/document.xml.rels", "word")
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Encode serializes the package. Parsed parts are re-serialized from their
// trees; all other parts are copied unchanged.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range d.entries {
		data := e.data
		if p, ok := d.parts[e.name]; ok {
			data = p.bytes()
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method, Modified: e.modified})
		if err != nil {
			return nil, fmt.Errorf("docx: write %s: %w", e.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("docx: write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("docx: close package: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Document) entry(name string) *entry {
	for _, e := range d.entries {
		if e.name == name {
			return e
		}
	}
	return nil
}

// part returns the parsed XML part, parsing it on first use
func (d *Document) part(name string) (*xmlPart, error) {
	if p, ok := d.parts[name]; ok {
		return p, nil
	}
	e := d.entry(name)
	if e == nil {
		return nil, fmt.Errorf("%w: missing part %s", ErrInvalid, name)
	}
	p, err := parsePart(name, e.data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	d.parts[name] = p
	return p, nil
}

type relationshipsXML struct {
	Relationships []struct {
		ID         string `xml:"Id,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

// readRelationships maps relationship ids to package part names
func (d *Document) readRelationships(name, base string) (map[string]string, error) {
	rels := make(map[string]string)
	e := d.entry(name)
	if e == nil {
		return rels, nil
	}
	var parsed relationshipsXML
	if err := xml.Unmarshal(e.data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	for _, r := range parsed.Relationships {
		if r.TargetMode == "External" {
			continue
		}
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join(base, target)
		}
		rels[r.ID] = target
	}
	return rels, nil
}

func (d *Document) body() *node {
	return d.main.documentElement().firstChild(d.w, "body")
}

// Paragraphs returns the top-level body paragraphs
func (d *Document) Paragraphs() []*Paragraph {
	var out []*Paragraph
	for _, n := range d.body().childElements(d.w, "p") {
		out = append(out, &Paragraph{n: n, w: d.w})
	}
	return out
}

// Tables returns the top-level body tables
func (d *Document) Tables() []*Table {
	var out []*Table
	for _, n := range d.body().childElements(d.w, "tbl") {
		out = append(out, &Table{n: n, w: d.w})
	}
	return out
}

// Section is one document section with its default header and footer.
// Header and Footer are nil when the section has none.
type Section struct {
	Index  int
	Header *HeaderFooter
	Footer *HeaderFooter
}

// HeaderFooter is a header or footer part
type HeaderFooter struct {
	Part string
	root *node
	w    string
}

// Paragraphs returns the paragraphs of the header or footer
func (h *HeaderFooter) Paragraphs() []*Paragraph {
	var out []*Paragraph
	for _, n := range h.root.childElements(h.w, "p") {
		out = append(out, &Paragraph{n: n, w: h.w})
	}
	return out
}

// Tables returns the tables of the header or footer
func (h *HeaderFooter) Tables() []*Table {
	var out []*Table
	for _, n := range h.root.childElements(h.w, "tbl") {
		out = append(out, &Table{n: n, w: h.w})
	}
	return out
}

// Sections returns the document sections in order. A section without its
// own default header or footer inherits the previous section's.
func (d *Document) Sections() ([]*Section, error) {
	var sectPrs []*node
	body := d.body()
	for _, c := range body.children {
		switch {
		case c.is(d.w, "p"):
			if ppr := c.firstChild(d.w, "pPr"); ppr != nil {
				if s := ppr.firstChild(d.w, "sectPr"); s != nil {
					sectPrs = append(sectPrs, s)
				}
			}
		case c.is(d.w, "sectPr"):
			sectPrs = append(sectPrs, c)
		}
	}

	r := d.main.prefixFor(nsRelationships, "r")
	var sections []*Section
	var header, footer *HeaderFooter
	for i, s := range sectPrs {
		if h, err := d.reference(s, "headerReference", r); err != nil {
			return nil, err
		} else if h != nil {
			header = h
		}
		if f, err := d.reference(s, "footerReference", r); err != nil {
			return nil, err
		} else if f != nil {
			footer = f
		}
		sections = append(sections, &Section{Index: i, Header: header, Footer: footer})
	}
	return sections, nil
}

func (d *Document) reference(sectPr *node, kind, r string) (*HeaderFooter, error) {
	for _, ref := range sectPr.childElements(d.w, kind) {
		if t, ok := ref.getAttr(d.w, "type"); ok && t != "default" {
			continue
		}
		id, ok := ref.getAttr(r, "id")
		if !ok {
			continue
		}
		name, ok := d.rels[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s references unknown relationship %s", ErrInvalid, kind, id)
		}
		p, err := d.part(name)
		if err != nil {
			return nil, err
		}
		return &HeaderFooter{Part: name, root: p.documentElement(), w: p.prefixFor(nsMain, "w")}, nil
	}
	return nil, nil
}

// insertBlock adds a block element at the end of the body, ahead of the
// trailing section properties
func (d *Document) insertBlock(n *node) {
	body := d.body()
	if last := body.childElements(d.w, "sectPr"); len(last) > 0 {
		body.insertBefore(n, last[len(last)-1])
		return
	}
	body.appendChild(n)
}

// AddParagraph appends a paragraph with one run holding text. style is a
// style id such as "Heading1"; empty means the default style.
func (d *Document) AddParagraph(text, style string) *Paragraph {
	p := &Paragraph{n: newElement(d.w, "p"), w: d.w}
	if style != "" {
		p.SetStyle(style)
	}
	if text != "" {
		p.AddRun(text, Format{})
	}
	d.insertBlock(p.n)
	return p
}

// AddHeading appends a heading paragraph. Level 0 uses the Title style.
func (d *Document) AddHeading(text string, level int) (*Paragraph, error) {
	if level < 0 || level > 9 {
		return nil, fmt.Errorf("docx: heading level %d out of range 0-9", level)
	}
	style := "Title"
	if level > 0 {
		style = fmt.Sprintf("Heading%d", level)
	}
	return d.AddParagraph(text, style), nil
}

// AddPageBreak appends a paragraph holding a page break
func (d *Document) AddPageBreak() *Paragraph {
	p := &Paragraph{n: newElement(d.w, "p"), w: d.w}
	r := p.n.appendChild(newElement(d.w, "r"))
	r.appendChild(newElement(d.w, "br", attr(d.w, "type", "page")))
	d.insertBlock(p.n)
	return p
}

// AddTable appends an empty rows x cols grid table
func (d *Document) AddTable(rows, cols int) (*Table, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("docx: table needs at least one row and column, got %dx%d", rows, cols)
	}
	w := d.w
	tbl := newElement(w, "tbl")
	pr := tbl.appendChild(newElement(w, "tblPr"))
	pr.appendChild(newElement(w, "tblStyle", attr(w, "val", "TableGrid")))
	pr.appendChild(newElement(w, "tblW", attr(w, "w", "0"), attr(w, "type", "auto")))
	pr.appendChild(newElement(w, "tblLook", attr(w, "val", "04A0")))
	grid := tbl.appendChild(newElement(w, "tblGrid"))
	width := 9360 / cols
	for range cols {
		grid.appendChild(newElement(w, "gridCol", attr(w, "w", fmt.Sprint(width))))
	}
	for range rows {
		tr := tbl.appendChild(newElement(w, "tr"))
		for range cols {
			tc := tr.appendChild(newElement(w, "tc"))
			tcPr := tc.appendChild(newElement(w, "tcPr"))
			tcPr.appendChild(newElement(w, "tcW", attr(w, "w", fmt.Sprint(width)), attr(w, "type", "dxa")))
			tc.appendChild(newElement(w, "p"))
		}
	}
	d.insertBlock(tbl)
	return &Table{n: tbl, w: w}, nil
}

// DeleteParagraph removes the top-level body paragraph at index
func (d *Document) DeleteParagraph(index int) error {
	paras := d.Paragraphs()
	if index < 0 || index >= len(paras) {
		return fmt.Errorf("docx: paragraph index %d out of range (0-%d)", index, len(paras)-1)
	}
	paras[index].n.detach()
	return nil
}

// ContentControl is a structured document tag
type ContentControl struct {
	Tag   string `json:"tag,omitempty"`
	Alias string `json:"alias,omitempty"`
	Text  string `json:"text"`
}

// ContentControls lists the structured document tags in the body
func (d *Document) ContentControls() []ContentControl {
	var out []ContentControl
	for _, sdt := range d.body().descendants(d.w, "sdt") {
		cc := ContentControl{}
		if pr := sdt.firstChild(d.w, "sdtPr"); pr != nil {
			if t := pr.firstChild(d.w, "tag"); t != nil {
				cc.Tag, _ = t.getAttr(d.w, "val")
			}
			if a := pr.firstChild(d.w, "alias"); a != nil {
				cc.Alias, _ = a.getAttr(d.w, "val")
			}
		}
		if content := sdt.firstChild(d.w, "sdtContent"); content != nil {
			var sb strings.Builder
			for _, t := range content.descendants(d.w, "t") {
				sb.WriteString(t.charData())
			}
			cc.Text = sb.String()
		}
		out = append(out, cc)
	}
	return out
}

// CoreProperties holds the document title and author
type CoreProperties struct {
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

// CoreProperties returns the package core properties. Missing properties
// are returned empty.
func (d *Document) CoreProperties() CoreProperties {
	p, err := d.part(corePartName)
	if err != nil {
		return CoreProperties{}
	}
	dc := p.prefixFor(nsDC, "dc")
	root := p.documentElement()
	var props CoreProperties
	if n := root.firstChild(dc, "title"); n != nil {
		props.Title = n.charData()
	}
	if n := root.firstChild(dc, "creator"); n != nil {
		props.Author = n.charData()
	}
	return props
}

// SetCoreProperties sets title and author; empty values are left unchanged
func (d *Document) SetCoreProperties(props CoreProperties) error {
	p, err := d.part(corePartName)
	if err != nil {
		return err
	}
	dc := p.prefixFor(nsDC, "dc")
	root := p.documentElement()
	set := func(local, value string) {
		if value == "" {
			return
		}
		n := root.firstChild(dc, local)
		if n == nil {
			n = root.appendChild(newElement(dc, local))
		}
		n.setCharData(value)
	}
	set("title", props.Title)
	set("creator", props.Author)
	return nil
}
