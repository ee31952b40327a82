package docx

import (
	"strings"
	"unicode/utf8"
)

// outlineTextLimit caps paragraph previews in an outline, in runes
const outlineTextLimit = 100

// OutlineItem is one entry of a document outline
type OutlineItem struct {
	Type    string `json:"type"` // "paragraph" or "table"
	Index   int    `json:"index"`
	Text    string `json:"text,omitempty"`
	Style   string `json:"style,omitempty"`
	Rows    int    `json:"rows,omitempty"`
	Columns int    `json:"columns,omitempty"`
}

// Outline lists non-empty body paragraphs (truncated previews, style when
// not the default) followed by the body tables with their dimensions.
// Paragraph indexes match Paragraphs().
func (d *Document) Outline() []OutlineItem {
	var out []OutlineItem
	for i, p := range d.Paragraphs() {
		text := p.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		item := OutlineItem{Type: "paragraph", Index: i, Text: preview(text)}
		if s := p.Style(); s != "" && s != "Normal" {
			item.Style = s
		}
		out = append(out, item)
	}
	for i, t := range d.Tables() {
		rows := t.Rows()
		item := OutlineItem{Type: "table", Index: i, Rows: len(rows)}
		if len(rows) > 0 {
			item.Columns = t.ColumnCount()
		}
		out = append(out, item)
	}
	return out
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= outlineTextLimit {
		return s
	}
	return string([]rune(s)[:outlineTextLimit]) + "..."
}

// Stats counts the structural elements of a document
type Stats struct {
	Paragraphs int `json:"paragraphs"`
	Tables     int `json:"tables"`
	Sections   int `json:"sections"`
	Headings   int `json:"headings"`
	Words      int `json:"words"`
}

// Stats counts body paragraphs, tables, sections, headings and words.
// Words include table cell text.
func (d *Document) Stats() (Stats, error) {
	sections, err := d.Sections()
	if err != nil {
		return Stats{}, err
	}
	paras := d.Paragraphs()
	tables := d.Tables()
	st := Stats{Paragraphs: len(paras), Tables: len(tables), Sections: len(sections)}
	for _, p := range paras {
		if p.IsHeading() {
			st.Headings++
		}
		st.Words += len(strings.Fields(p.Text()))
	}
	for _, t := range tables {
		for _, p := range t.Paragraphs() {
			st.Words += len(strings.Fields(p.Text()))
		}
	}
	return st, nil
}

// Text returns the body paragraphs one per line, followed by every table
// cell paragraph one per line
func (d *Document) Text() string {
	var sb strings.Builder
	for _, p := range d.Paragraphs() {
		sb.WriteString(p.Text())
		sb.WriteByte('\n')
	}
	for _, t := range d.Tables() {
		for _, p := range t.Paragraphs() {
			sb.WriteString(p.Text())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
