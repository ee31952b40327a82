package docx

import (
	"strings"
	"unicode/utf8"
)

// Paragraph is a w:p element
type Paragraph struct {
	n *node
	w string
}

// Runs returns the paragraph's direct runs in order
func (p *Paragraph) Runs() []*Run {
	var out []*Run
	for _, n := range p.n.childElements(p.w, "r") {
		out = append(out, &Run{n: n, w: p.w})
	}
	return out
}

// Text concatenates the text of the paragraph's runs
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs() {
		sb.WriteString(r.Text())
	}
	return sb.String()
}

// Style returns the paragraph style id, or "" for the default style
func (p *Paragraph) Style() string {
	ppr := p.n.firstChild(p.w, "pPr")
	if ppr == nil {
		return ""
	}
	s := ppr.firstChild(p.w, "pStyle")
	if s == nil {
		return ""
	}
	v, _ := s.getAttr(p.w, "val")
	return v
}

// SetStyle sets the paragraph style id
func (p *Paragraph) SetStyle(style string) {
	ppr := p.n.firstChild(p.w, "pPr")
	if ppr == nil {
		ppr = newElement(p.w, "pPr")
		if len(p.n.children) > 0 {
			p.n.insertBefore(ppr, p.n.children[0])
		} else {
			p.n.appendChild(ppr)
		}
	}
	s := ppr.firstChild(p.w, "pStyle")
	if s == nil {
		s = newElement(p.w, "pStyle")
		if len(ppr.children) > 0 {
			ppr.insertBefore(s, ppr.children[0])
		} else {
			ppr.appendChild(s)
		}
	}
	s.setAttr(p.w, "val", style)
}

// IsHeading reports whether the paragraph uses a heading or title style
func (p *Paragraph) IsHeading() bool {
	s := p.Style()
	return s == "Title" || strings.HasPrefix(s, "Heading")
}

// AddRun appends a run with the given text and formatting
func (p *Paragraph) AddRun(text string, f Format) *Run {
	r := &Run{n: newElement(p.w, "r"), w: p.w}
	if rpr := f.element(p.w); rpr != nil {
		r.n.appendChild(rpr)
	}
	p.n.appendChild(r.n)
	r.SetText(text)
	return r
}

// Remove detaches the paragraph from its parent
func (p *Paragraph) Remove() {
	p.n.detach()
}

// Format is the formatting state shared by the text of a run
type Format struct {
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
	Font      string `json:"font,omitempty"`
}

func (f Format) element(w string) *node {
	if f == (Format{}) {
		return nil
	}
	rpr := newElement(w, "rPr")
	if f.Font != "" {
		rpr.appendChild(newElement(w, "rFonts", attr(w, "ascii", f.Font), attr(w, "hAnsi", f.Font)))
	}
	if f.Bold {
		rpr.appendChild(newElement(w, "b"))
	}
	if f.Italic {
		rpr.appendChild(newElement(w, "i"))
	}
	if f.Underline {
		rpr.appendChild(newElement(w, "u", attr(w, "val", "single")))
	}
	return rpr
}

// Run is a w:r element
type Run struct {
	n *node
	w string
}

// Text returns the run's visible text. Tabs read as "\t" and line breaks as "\n".
func (r *Run) Text() string {
	var sb strings.Builder
	for _, c := range r.n.children {
		switch {
		case c.is(r.w, "t"):
			sb.WriteString(c.charData())
		case c.is(r.w, "tab"):
			sb.WriteByte('\t')
		case c.is(r.w, "cr"), r.isLineBreak(c):
			sb.WriteByte('\n')
		case c.is(r.w, "noBreakHyphen"):
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

func (r *Run) isLineBreak(c *node) bool {
	if !c.is(r.w, "br") {
		return false
	}
	t, ok := c.getAttr(r.w, "type")
	return !ok || t == "textWrapping"
}

func (r *Run) isTextChild(c *node) bool {
	return c.is(r.w, "t") || c.is(r.w, "tab") || c.is(r.w, "cr") || c.is(r.w, "noBreakHyphen") || r.isLineBreak(c)
}

// SetText replaces the run's text. Run properties and non-text content
// such as drawings and page breaks are kept in place: text before such an
// element stays before it. When the run holds several text segments, the
// unchanged head and tail of the text keep their segments and the changed
// middle goes to the segment where the change starts.
func (r *Run) SetText(text string) {
	old := []rune(r.Text())

	// items holds the kept children, with nil marking a text segment
	var items []*node
	var ends []int
	offset := 0
	inText := false
	for _, c := range r.n.children {
		if !r.isTextChild(c) {
			items = append(items, c)
			inText = false
			continue
		}
		c.parent = nil
		if !inText {
			items = append(items, nil)
			ends = append(ends, offset)
			inText = true
		}
		offset += r.textLen(c)
		ends[len(ends)-1] = offset
	}
	if len(ends) == 0 {
		items = append(items, nil)
		ends = append(ends, 0)
	}

	segments := splitText(old, []rune(text), ends)

	r.n.children = nil
	seg := 0
	for _, c := range items {
		if c != nil {
			r.n.appendChild(c)
			continue
		}
		r.appendText(segments[seg])
		seg++
	}
}

// HasContent reports whether the run holds anything besides its properties
func (r *Run) HasContent() bool {
	for _, c := range r.n.children {
		if c.kind == elementNode && !c.is(r.w, "rPr") {
			return true
		}
	}
	return false
}

func (r *Run) textLen(c *node) int {
	if c.is(r.w, "t") {
		return utf8.RuneCountInString(c.charData())
	}
	return 1
}

// appendText writes text as w:t, w:tab and w:br children
func (r *Run) appendText(text string) {
	var chunk strings.Builder
	flush := func() {
		if chunk.Len() == 0 {
			return
		}
		s := chunk.String()
		t := newElement(r.w, "t")
		if strings.TrimSpace(s) != s {
			t.setAttr("xml", "space", "preserve")
		}
		t.appendChild(newText(s))
		r.n.appendChild(t)
		chunk.Reset()
	}
	for _, ch := range text {
		switch ch {
		case '\t':
			flush()
			r.n.appendChild(newElement(r.w, "tab"))
		case '\n':
			flush()
			r.n.appendChild(newElement(r.w, "br"))
		case '\r':
		default:
			chunk.WriteRune(ch)
		}
	}
	flush()
}

// splitText cuts text into len(ends) pieces. ends are the segment end
// offsets of old. Offsets inside the common prefix or suffix of old and
// text move with it; offsets inside the changed middle move to its end.
func splitText(old, text []rune, ends []int) []string {
	p := 0
	for p < len(old) && p < len(text) && old[p] == text[p] {
		p++
	}
	sfx := 0
	for sfx < len(old)-p && sfx < len(text)-p && old[len(old)-1-sfx] == text[len(text)-1-sfx] {
		sfx++
	}
	delta := len(text) - len(old)

	out := make([]string, len(ends))
	start := 0
	for i, end := range ends {
		var at int
		switch {
		case i == len(ends)-1:
			at = len(text)
		case end <= p:
			at = end
		case end >= len(old)-sfx:
			at = end + delta
		default:
			at = len(text) - sfx
		}
		if at < start {
			at = start
		}
		out[i] = string(text[start:at])
		start = at
	}
	return out
}

// Format returns the run's direct formatting
func (r *Run) Format() Format {
	var f Format
	rpr := r.n.firstChild(r.w, "rPr")
	if rpr == nil {
		return f
	}
	f.Bold = toggle(rpr.firstChild(r.w, "b"), r.w)
	f.Italic = toggle(rpr.firstChild(r.w, "i"), r.w)
	if u := rpr.firstChild(r.w, "u"); u != nil {
		v, ok := u.getAttr(r.w, "val")
		f.Underline = !ok || v != "none"
	}
	if fonts := rpr.firstChild(r.w, "rFonts"); fonts != nil {
		f.Font, _ = fonts.getAttr(r.w, "ascii")
	}
	return f
}

func toggle(n *node, w string) bool {
	if n == nil {
		return false
	}
	v, ok := n.getAttr(w, "val")
	if !ok {
		return true
	}
	switch v {
	case "0", "false", "off":
		return false
	}
	return true
}

// Remove detaches the run from its paragraph
func (r *Run) Remove() {
	r.n.detach()
}

// Table is a w:tbl element
type Table struct {
	n *node
	w string
}

// Rows returns the table rows
func (t *Table) Rows() []*Row {
	var out []*Row
	for _, n := range t.n.childElements(t.w, "tr") {
		out = append(out, &Row{n: n, w: t.w})
	}
	return out
}

// ColumnCount returns the number of grid columns
func (t *Table) ColumnCount() int {
	if grid := t.n.firstChild(t.w, "tblGrid"); grid != nil {
		if cols := grid.childElements(t.w, "gridCol"); len(cols) > 0 {
			return len(cols)
		}
	}
	n := 0
	for _, row := range t.Rows() {
		n = max(n, len(row.Cells()))
	}
	return n
}

// RemoveRow detaches the row at index; it reports false when index is out of range
func (t *Table) RemoveRow(index int) bool {
	rows := t.Rows()
	if index < 0 || index >= len(rows) {
		return false
	}
	rows[index].n.detach()
	return true
}

// Paragraphs returns every paragraph in the table's cells, row by row
func (t *Table) Paragraphs() []*Paragraph {
	var out []*Paragraph
	for _, row := range t.Rows() {
		for _, cell := range row.Cells() {
			out = append(out, cell.Paragraphs()...)
		}
	}
	return out
}

// Row is a w:tr element
type Row struct {
	n *node
	w string
}

// Cells returns the row's cells
func (r *Row) Cells() []*Cell {
	var out []*Cell
	for _, n := range r.n.childElements(r.w, "tc") {
		out = append(out, &Cell{n: n, w: r.w})
	}
	return out
}

// Cell is a w:tc element
type Cell struct {
	n *node
	w string
}

// Paragraphs returns the cell's paragraphs
func (c *Cell) Paragraphs() []*Paragraph {
	var out []*Paragraph
	for _, n := range c.n.childElements(c.w, "p") {
		out = append(out, &Paragraph{n: n, w: c.w})
	}
	return out
}

// Text joins the cell's paragraph texts with newlines
func (c *Cell) Text() string {
	paras := c.Paragraphs()
	texts := make([]string, len(paras))
	for i, p := range paras {
		texts[i] = p.Text()
	}
	return strings.Join(texts, "\n")
}

// SetText replaces the cell content with a single paragraph holding text
func (c *Cell) SetText(text string) {
	paras := c.Paragraphs()
	if len(paras) == 0 {
		p := &Paragraph{n: c.n.appendChild(newElement(c.w, "p")), w: c.w}
		p.AddRun(text, Format{})
		return
	}
	for _, p := range paras[1:] {
		p.Remove()
	}
	for _, r := range paras[0].Runs() {
		r.Remove()
	}
	paras[0].AddRun(text, Format{})
}
