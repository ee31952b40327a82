// Package mutate applies text substitutions and table cleanup to decoded
// documents. Every function works in memory on a *docx.Document and scans
// the whole document on each call.
package mutate

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/tendant/simple-document/pkg/docstore/docx"
)

// Mode selects how a pattern is matched against paragraph text.
type Mode int

const (
	// ModeRun matches within the text of a single run. A pattern split across
	// two runs is not matched. Formatting of every run is preserved.
	ModeRun Mode = iota

	// ModeParagraph matches against the whole paragraph text and moves the
	// paragraph text into its first run when anything changes, dropping the
	// formatting of the other runs. Drawings and breaks in later runs stay.
	ModeParagraph
)

func (m Mode) String() string {
	switch m {
	case ModeParagraph:
		return "paragraph"
	default:
		return "run"
	}
}

// ParseMode parses "run" or "paragraph"; empty selects ModeRun
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "run":
		return ModeRun, nil
	case "paragraph":
		return ModeParagraph, nil
	}
	return ModeRun, fmt.Errorf("unknown substitution mode %q", s)
}

// ErrEmptyPattern is returned when the text to find is empty
var ErrEmptyPattern = errors.New("find text must not be empty")

// Scope kinds reported by ReplaceEverywhere
const (
	KindBody            = "body"
	KindTable           = "table"
	KindHeader          = "header"
	KindFooter          = "footer"
	KindContentControls = "content_controls"
)

// Scope is one structural region of a document
type Scope struct {
	Kind       string
	Index      int // 1-based for tables and sections, 0 for the body
	Paragraphs []*docx.Paragraph
}

// Label is the human readable scope name, e.g. "Table 2" or "Header section 1"
func (s Scope) Label() string {
	switch s.Kind {
	case KindTable:
		return fmt.Sprintf("Table %d", s.Index)
	case KindHeader:
		return fmt.Sprintf("Header section %d", s.Index)
	case KindFooter:
		return fmt.Sprintf("Footer section %d", s.Index)
	default:
		return "Body paragraphs"
	}
}

// Scopes lists the body, every top-level table, and the header and footer
// of every section. A header part shared by several sections is listed once.
func Scopes(doc *docx.Document) ([]Scope, error) {
	scopes := []Scope{{Kind: KindBody, Paragraphs: doc.Paragraphs()}}
	for i, t := range doc.Tables() {
		scopes = append(scopes, Scope{Kind: KindTable, Index: i + 1, Paragraphs: t.Paragraphs()})
	}

	sections, err := doc.Sections()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, s := range sections {
		for _, hf := range []struct {
			kind string
			part *docx.HeaderFooter
		}{{KindHeader, s.Header}, {KindFooter, s.Footer}} {
			if hf.part == nil || seen[hf.part.Part] {
				continue
			}
			seen[hf.part.Part] = true
			paras := hf.part.Paragraphs()
			for _, t := range hf.part.Tables() {
				paras = append(paras, t.Paragraphs()...)
			}
			scopes = append(scopes, Scope{Kind: hf.kind, Index: s.Index + 1, Paragraphs: paras})
		}
	}
	return scopes, nil
}

// replaceInParagraph applies patterns in order and returns the number of
// replacements per pattern index.
func replaceInParagraph(p *docx.Paragraph, patterns []string, values []string, mode Mode) []int {
	counts := make([]int, len(patterns))
	switch mode {
	case ModeParagraph:
		text := p.Text()
		out := text
		for i, pat := range patterns {
			if n := strings.Count(out, pat); n > 0 {
				counts[i] += n
				out = strings.ReplaceAll(out, pat, values[i])
			}
		}
		if out == text {
			return counts
		}
		runs := p.Runs()
		runs[0].SetText(out)
		for _, r := range runs[1:] {
			r.SetText("")
			if !r.HasContent() {
				r.Remove()
			}
		}
	default:
		for _, r := range p.Runs() {
			text := r.Text()
			out := text
			for i, pat := range patterns {
				if n := strings.Count(out, pat); n > 0 {
					counts[i] += n
					out = strings.ReplaceAll(out, pat, values[i])
				}
			}
			if out != text {
				r.SetText(out)
			}
		}
	}
	return counts
}

// SubstituteReport summarizes a Substitute call
type SubstituteReport struct {
	Replacements int            `json:"replacements"`
	ByVariable   map[string]int `json:"by_variable"`
}

// Substitute replaces every key of mapping with its value across all
// scopes. Keys are applied in lexical order; empty keys are ignored.
func Substitute(doc *docx.Document, mapping map[string]string, mode Mode) (SubstituteReport, error) {
	report := SubstituteReport{ByVariable: make(map[string]int)}
	patterns := slices.Sorted(maps.Keys(mapping))
	patterns = slices.DeleteFunc(patterns, func(s string) bool { return s == "" })
	if len(patterns) == 0 {
		return report, nil
	}
	values := make([]string, len(patterns))
	for i, p := range patterns {
		values[i] = mapping[p]
		report.ByVariable[p] = 0
	}

	scopes, err := Scopes(doc)
	if err != nil {
		return report, err
	}
	for _, scope := range scopes {
		for _, p := range scope.Paragraphs {
			for i, n := range replaceInParagraph(p, patterns, values, mode) {
				report.ByVariable[patterns[i]] += n
				report.Replacements += n
			}
		}
	}
	return report, nil
}

// LocationCount is the number of replacements made in one scope
type LocationCount struct {
	Kind  string `json:"kind"`
	Index int    `json:"index,omitempty"`
	Label string `json:"location"`
	Count int    `json:"count"`
}

// ReplaceReport summarizes a ReplaceEverywhere call. Locations lists only
// scopes with at least one replacement.
type ReplaceReport struct {
	Find            string          `json:"find"`
	Replace         string          `json:"replace"`
	Locations       []LocationCount `json:"locations"`
	ContentControls int             `json:"content_controls"`
	Total           int             `json:"total"`
}

// ByKind sums the location counts per scope kind
func (r ReplaceReport) ByKind() map[string]int {
	out := make(map[string]int)
	for _, l := range r.Locations {
		out[l.Kind] += l.Count
	}
	return out
}

// ReplaceEverywhere replaces find with replace in the body, tables,
// headers and footers. Content controls are reported but never modified;
// their count is always zero.
func ReplaceEverywhere(doc *docx.Document, find, replace string, mode Mode) (ReplaceReport, error) {
	report := ReplaceReport{Find: find, Replace: replace}
	if find == "" {
		return report, ErrEmptyPattern
	}
	scopes, err := Scopes(doc)
	if err != nil {
		return report, err
	}
	patterns, values := []string{find}, []string{replace}
	for _, scope := range scopes {
		count := 0
		for _, p := range scope.Paragraphs {
			count += replaceInParagraph(p, patterns, values, mode)[0]
		}
		if count > 0 {
			report.Locations = append(report.Locations, LocationCount{
				Kind:  scope.Kind,
				Index: scope.Index,
				Label: scope.Label(),
				Count: count,
			})
			report.Total += count
		}
	}
	return report, nil
}

// CleanReport describes the cleanup of one table
type CleanReport struct {
	Table       int    `json:"table"`
	Title       string `json:"title"`
	RowsBefore  int    `json:"rows_before"`
	RowsRemoved int    `json:"rows_removed"`
}

// CleanTable keeps the first two rows of t (title and column headers) and
// removes the rest, last row first. index is the table's 0-based position,
// used for the placeholder title when the first row is empty.
func CleanTable(t *docx.Table, index int) CleanReport {
	rows := t.Rows()
	report := CleanReport{Table: index + 1, RowsBefore: len(rows)}

	if len(rows) > 0 {
		var parts []string
		for _, c := range rows[0].Cells() {
			if text := strings.TrimSpace(c.Text()); text != "" {
				parts = append(parts, text)
			}
		}
		report.Title = strings.Join(parts, " ")
	}
	if report.Title == "" {
		report.Title = fmt.Sprintf("Table %d", index+1)
	}

	for i := len(rows) - 1; i >= 2; i-- {
		if t.RemoveRow(i) {
			report.RowsRemoved++
		}
	}
	return report
}

// CleanTables applies CleanTable to every top-level table
func CleanTables(doc *docx.Document) []CleanReport {
	tables := doc.Tables()
	reports := make([]CleanReport, 0, len(tables))
	for i, t := range tables {
		reports = append(reports, CleanTable(t, i))
	}
	return reports
}

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// FindVariables returns the sorted, distinct names of {{name}} tokens found
// in paragraph text across all scopes. Tokens split across runs are found
// because matching uses the whole paragraph text.
func FindVariables(doc *docx.Document) ([]string, error) {
	scopes, err := Scopes(doc)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, scope := range scopes {
		for _, p := range scope.Paragraphs {
			for _, m := range variablePattern.FindAllStringSubmatch(p.Text(), -1) {
				seen[m[1]] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}
