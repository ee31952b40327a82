package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/docx"
	"github.com/tendant/simple-document/pkg/docstore/mutate"
)

type paragraphArgs struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
	Style    string `json:"style"`
}

type headingArgs struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
	Level    int    `json:"level"`
}

type tableArgs struct {
	Filename string `json:"filename"`
	Rows     int    `json:"rows"`
	Cols     int    `json:"cols"`
}

type indexArgs struct {
	Filename string `json:"filename"`
	Index    int    `json:"paragraph_index"`
}

type findArgs struct {
	Filename  string `json:"filename"`
	Text      string `json:"text_to_find"`
	MatchCase *bool  `json:"match_case"`
}

type replaceArgs struct {
	Filename string `json:"filename"`
	Find     string `json:"find_text"`
	Replace  string `json:"replace_text"`
	Mode     string `json:"mode"`
}

// Match is one paragraph containing the searched text
type Match struct {
	Location  string `json:"location"`
	Paragraph int    `json:"paragraph"`
	Text      string `json:"text"`
}

var (
	textParam  = Param{Name: "text", Type: TypeString, Description: "Text to add", Required: true}
	indexParam = Param{Name: "paragraph_index", Type: TypeInteger, Description: "0-based paragraph index", Required: true}
	modeParam  = Param{Name: "mode", Type: TypeString, Description: "Substitution mode: run (default) or paragraph"}
	findParams = []Param{
		filenameParam,
		{Name: "find_text", Type: TypeString, Description: "Text to find", Required: true},
		{Name: "replace_text", Type: TypeString, Description: "Replacement text"},
		modeParam,
	}
)

func (s *Service) registerContent(r *Registry) {
	Register(r, Spec{
		Name:        "add_paragraph",
		Group:       groupContent,
		Description: "Append a paragraph to a document, creating the document when missing.",
		Params: []Param{
			filenameParam,
			textParam,
			{Name: "style", Type: TypeString, Description: "Paragraph style id, e.g. Quote"},
		},
	}, func(ctx context.Context, args paragraphArgs) (Result, error) {
		return s.edit(ctx, args.Filename, "Paragraph added to", func(doc *docx.Document, _ bool) error {
			doc.AddParagraph(args.Text, args.Style)
			return nil
		})
	})

	Register(r, Spec{
		Name:        "add_heading",
		Group:       groupContent,
		Description: "Append a heading to a document, creating the document when missing.",
		Params: []Param{
			filenameParam,
			textParam,
			{Name: "level", Type: TypeInteger, Description: "Heading level 1-9, default 1"},
		},
	}, func(ctx context.Context, args headingArgs) (Result, error) {
		return s.addHeading(ctx, args)
	})

	Register(r, Spec{
		Name:        "add_heading_level_2",
		Group:       groupContent,
		Description: "Append a level 2 heading to a document.",
		Params:      []Param{filenameParam, textParam},
	}, func(ctx context.Context, args headingArgs) (Result, error) {
		args.Level = 2
		return s.addHeading(ctx, args)
	})

	Register(r, Spec{
		Name:        "add_table",
		Group:       groupContent,
		Description: "Append an empty table to a document.",
		Params: []Param{
			filenameParam,
			{Name: "rows", Type: TypeInteger, Description: "Number of rows", Required: true},
			{Name: "cols", Type: TypeInteger, Description: "Number of columns", Required: true},
		},
	}, func(ctx context.Context, args tableArgs) (Result, error) {
		return s.edit(ctx, args.Filename, fmt.Sprintf("Table (%dx%d) added to", args.Rows, args.Cols), func(doc *docx.Document, _ bool) error {
			if _, err := doc.AddTable(args.Rows, args.Cols); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return nil
		})
	})

	Register(r, Spec{
		Name:        "add_page_break",
		Group:       groupContent,
		Description: "Append a page break to a document.",
		Params:      []Param{filenameParam},
	}, func(ctx context.Context, args fileArgs) (Result, error) {
		return s.edit(ctx, args.Filename, "Page break added to", func(doc *docx.Document, _ bool) error {
			doc.AddPageBreak()
			return nil
		})
	})

	Register(r, Spec{
		Name:        "delete_paragraph",
		Group:       groupContent,
		Description: "Delete a body paragraph by its 0-based index.",
		Params:      []Param{filenameParam, indexParam},
	}, func(ctx context.Context, args indexArgs) (Result, error) {
		name := EnsureDocx(args.Filename)
		return s.edit(ctx, name, fmt.Sprintf("Paragraph %d deleted from", args.Index), docstore.Existing(name, func(doc *docx.Document) error {
			if err := doc.DeleteParagraph(args.Index); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return nil
		}))
	})

	Register(r, Spec{
		Name:        "get_paragraph_text",
		Group:       groupContent,
		Description: "Get the text of a body paragraph by its 0-based index.",
		Params:      []Param{filenameParam, indexParam},
	}, func(ctx context.Context, args indexArgs) (Result, error) {
		doc, _, err := s.asm.Open(ctx, EnsureDocx(args.Filename))
		if err != nil {
			return Result{}, err
		}
		paras := doc.Paragraphs()
		if args.Index < 0 || args.Index >= len(paras) {
			return Result{}, fmt.Errorf("%w: paragraph index %d out of range (0-%d)", ErrInvalidInput, args.Index, len(paras)-1)
		}
		p := paras[args.Index]
		return Result{OK: true, Message: p.Text(), Data: map[string]any{
			"index": args.Index,
			"style": p.Style(),
			"text":  p.Text(),
		}}, nil
	})

	Register(r, Spec{
		Name:        "find_text_in_document",
		Group:       groupContent,
		Description: "Find the paragraphs containing a text.",
		Params: []Param{
			filenameParam,
			{Name: "text_to_find", Type: TypeString, Description: "Text to search for", Required: true},
			{Name: "match_case", Type: TypeBoolean, Description: "Case sensitive search, default true"},
		},
	}, s.findText)

	Register(r, Spec{
		Name:        "search_and_replace",
		Group:       groupContent,
		Description: "Replace text everywhere in a document.",
		Params:      findParams,
	}, s.replaceEverywhere)

	Register(r, Spec{
		Name:        "replace_text_universal",
		Group:       groupContent,
		Description: "Replace text in body paragraphs, tables, headers and footers and report where.",
		Params:      findParams,
	}, s.replaceEverywhere)

	Register(r, Spec{
		Name:        "clean_template_tables",
		Group:       groupContent,
		Description: "Keep only the title and header rows of every table in a document.",
		Params:      []Param{filenameParam},
	}, func(ctx context.Context, args fileArgs) (Result, error) {
		name := EnsureDocx(args.Filename)
		reports, err := s.asm.CleanTables(ctx, name)
		if err != nil {
			return Result{}, err
		}
		lines := []string{fmt.Sprintf("Cleaned %d table(s) in %s", len(reports), name)}
		for _, rep := range reports {
			lines = append(lines, fmt.Sprintf("  - Table %d '%s': removed %d of %d row(s)", rep.Table, rep.Title, rep.RowsRemoved, rep.RowsBefore))
		}
		res := withURL(strings.Join(lines, "\n"), "Document URL", s.url(ctx, s.docs(), name))
		res.Data = reports
		return res, nil
	})
}

// edit runs fn through OpenAndMutate and reports "<verb> <key>"
func (s *Service) edit(ctx context.Context, filename, verb string, fn docstore.MutateFunc) (Result, error) {
	res, err := s.asm.OpenAndMutate(ctx, EnsureDocx(filename), fn)
	if err != nil {
		return Result{}, err
	}
	return withURL(fmt.Sprintf("%s %s", verb, res.Key), "Document URL", s.url(ctx, s.docs(), res.Key)), nil
}

func (s *Service) addHeading(ctx context.Context, args headingArgs) (Result, error) {
	level := args.Level
	if level == 0 {
		level = 1
	}
	return s.edit(ctx, args.Filename, fmt.Sprintf("Heading level %d added to", level), func(doc *docx.Document, _ bool) error {
		if _, err := doc.AddHeading(args.Text, level); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil
	})
}

func (s *Service) findText(ctx context.Context, args findArgs) (Result, error) {
	name := EnsureDocx(args.Filename)
	doc, _, err := s.asm.Open(ctx, name)
	if err != nil {
		return Result{}, err
	}
	matchCase := args.MatchCase == nil || *args.MatchCase
	needle := args.Text
	if !matchCase {
		needle = strings.ToLower(needle)
	}
	contains := func(text string) bool {
		if !matchCase {
			text = strings.ToLower(text)
		}
		return strings.Contains(text, needle)
	}

	scopes, err := mutate.Scopes(doc)
	if err != nil {
		return Result{}, err
	}
	matches := []Match{}
	for _, scope := range scopes {
		for i, p := range scope.Paragraphs {
			if text := p.Text(); contains(text) {
				matches = append(matches, Match{Location: scope.Label(), Paragraph: i, Text: text})
			}
		}
	}
	if len(matches) == 0 {
		return Result{OK: true, Message: fmt.Sprintf("No occurrences of '%s' found in %s", args.Text, name), Data: matches}, nil
	}
	lines := []string{fmt.Sprintf("Found '%s' in %d paragraph(s) of %s:", args.Text, len(matches), name)}
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("  - %s, paragraph %d: %s", m.Location, m.Paragraph, m.Text))
	}
	return Result{OK: true, Message: strings.Join(lines, "\n"), Data: matches}, nil
}

func (s *Service) replaceEverywhere(ctx context.Context, args replaceArgs) (Result, error) {
	asm, err := s.withMode(args.Mode)
	if err != nil {
		return Result{}, err
	}
	name := EnsureDocx(args.Filename)
	report, err := asm.ReplaceEverywhere(ctx, name, args.Find, args.Replace)
	if err != nil {
		return Result{}, err
	}
	if report.Total == 0 {
		return Result{OK: true, Message: fmt.Sprintf("No occurrences of '%s' found in %s", args.Find, name), Data: report}, nil
	}
	locations := make([]string, 0, len(report.Locations))
	for _, l := range report.Locations {
		locations = append(locations, fmt.Sprintf("%s: %d", l.Label, l.Count))
	}
	msg := fmt.Sprintf("Replaced '%s' with '%s' in %s\nTotal replacements: %d\nLocations:\n  - %s",
		args.Find, args.Replace, name, report.Total, strings.Join(locations, "\n  - "))
	res := withURL(msg, "Document URL", s.url(ctx, s.docs(), name))
	res.Data = report
	return res, nil
}
