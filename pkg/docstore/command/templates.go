package command

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/tendant/simple-document/pkg/docstore"
)

type templateListArgs struct {
	Category string `json:"category"`
}

type templateArgs struct {
	Template string `json:"template_name"`
	Category string `json:"category"`
}

type fromTemplateArgs struct {
	Template    string            `json:"template_name"`
	Filename    string            `json:"new_document_name"`
	Category    string            `json:"category"`
	Variables   map[string]string `json:"variables"`
	CleanTables bool              `json:"clean_tables"`
	Mode        string            `json:"mode"`
}

type addTemplateArgs struct {
	Source      string `json:"source_document"`
	Template    string `json:"template_name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Author      string `json:"author"`
}

// TemplateListing is the payload of list_document_templates
type TemplateListing struct {
	Total     int            `json:"total_templates"`
	Category  string         `json:"category_filter"`
	Templates []TemplateItem `json:"templates"`
}

// TemplateItem is one template of a TemplateListing
type TemplateItem struct {
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Created     time.Time `json:"created,omitempty"`
	SizeKB      float64   `json:"size_kb"`
	DownloadURL string    `json:"download_url,omitempty"`
}

// DefaultTemplateAuthor is recorded when add_document_template gets no author
const DefaultTemplateAuthor = "Unknown"

var (
	templateParam = Param{Name: "template_name", Type: TypeString, Description: "Template name, with or without .docx", Required: true}
	categoryParam = Param{Name: "category", Type: TypeString, Description: "Template category, default general"}
)

func (s *Service) registerTemplates(r *Registry) {
	Register(r, Spec{
		Name:        "list_document_templates",
		Group:       groupTemplate,
		Description: "List document templates, optionally filtered by category.",
		Params:      []Param{{Name: "category", Type: TypeString, Description: "Category filter, empty lists all templates"}},
	}, s.listTemplates)

	Register(r, Spec{
		Name:        "get_template_info",
		Group:       groupTemplate,
		Description: "Get the statistics, structure and {{variables}} of a template.",
		Params:      []Param{templateParam, categoryParam},
	}, func(ctx context.Context, args templateArgs) (Result, error) {
		details, err := s.asm.DescribeTemplate(ctx, args.Template, args.Category, s.urlHours)
		if err != nil {
			return Result{}, err
		}
		msg := fmt.Sprintf("Template '%s' in category '%s': %d paragraph(s), %d table(s), %d variable(s)",
			details.Name, details.Category, details.Statistics.Paragraphs, details.Statistics.Tables, len(details.Variables))
		return Result{OK: true, Message: msg, URL: details.DownloadURL, Data: details}, nil
	})

	Register(r, Spec{
		Name:        "create_document_from_template",
		Group:       groupTemplate,
		Description: "Create a new document from a template, replacing {{variables}}.",
		Params: []Param{
			templateParam,
			{Name: "new_document_name", Type: TypeString, Description: "Name of the new document", Required: true},
			categoryParam,
			{Name: "variables", Type: TypeObject, Description: `Replacements keyed by token, e.g. {"{{client}}": "Acme"}`},
			{Name: "clean_tables", Type: TypeBoolean, Description: "Keep only title and header rows of every table"},
			modeParam,
		},
	}, s.createFromTemplate)

	Register(r, Spec{
		Name:        "add_document_template",
		Group:       groupTemplate,
		Description: "Save an existing document as a template.",
		Params: []Param{
			{Name: "source_document", Type: TypeString, Description: "Document to use as template", Required: true},
			templateParam,
			categoryParam,
			{Name: "description", Type: TypeString, Description: "Template description"},
			{Name: "author", Type: TypeString, Description: "Template author, default Unknown"},
		},
	}, func(ctx context.Context, args addTemplateArgs) (Result, error) {
		if args.Author == "" {
			args.Author = DefaultTemplateAuthor
		}
		source := EnsureDocx(args.Source)
		tmpl, err := s.asm.AddTemplate(ctx, source, args.Template, docstore.TemplateInfo{
			Category:    args.Category,
			Description: args.Description,
			Author:      args.Author,
		})
		if err != nil {
			return Result{}, err
		}
		msg := fmt.Sprintf("Template '%s' saved successfully in category '%s'", tmpl.Name, tmpl.Category)
		res := withURL(msg, "Template URL", s.url(ctx, s.asm.Templates().Store(), tmpl.Key))
		res.Data = tmpl
		return res, nil
	})

	Register(r, Spec{
		Name:        "delete_document_template",
		Group:       groupTemplate,
		Description: "Delete a template.",
		Params:      []Param{templateParam, categoryParam},
	}, func(ctx context.Context, args templateArgs) (Result, error) {
		if s.asm.Templates() == nil {
			return Result{}, fmt.Errorf("template repository not configured")
		}
		key, err := s.asm.Templates().Delete(ctx, args.Template, args.Category)
		if err != nil {
			return Result{}, err
		}
		return Result{OK: true, Message: fmt.Sprintf("Template '%s' deleted successfully", docstore.NormalizeTemplateName(args.Template)), Data: map[string]string{"key": key}}, nil
	})
}

func (s *Service) listTemplates(ctx context.Context, args templateListArgs) (Result, error) {
	repo := s.asm.Templates()
	if repo == nil {
		return Result{}, fmt.Errorf("template repository not configured")
	}
	templates, err := repo.List(ctx, args.Category)
	if err != nil {
		return Result{}, err
	}
	listing := TemplateListing{Total: len(templates), Category: args.Category, Templates: make([]TemplateItem, 0, len(templates))}
	for _, t := range templates {
		listing.Templates = append(listing.Templates, TemplateItem{
			Name:        t.Name,
			Category:    t.Category,
			Description: t.Description,
			Author:      t.Author,
			Created:     t.Created,
			SizeKB:      math.Round(float64(t.Size)/1024*100) / 100,
			DownloadURL: t.URL,
		})
	}
	if len(templates) == 0 {
		msg := "No templates found"
		if args.Category != "" {
			msg += fmt.Sprintf(" in category '%s'", args.Category)
		}
		return Result{OK: true, Message: msg, Data: listing}, nil
	}

	categories := make([]string, 0)
	for _, t := range templates {
		if !slices.Contains(categories, t.Category) {
			categories = append(categories, t.Category)
		}
	}
	msg := fmt.Sprintf("Found %d template(s) in %s", len(templates), strings.Join(categories, ", "))
	return Result{OK: true, Message: msg, Data: listing}, nil
}

func (s *Service) createFromTemplate(ctx context.Context, args fromTemplateArgs) (Result, error) {
	asm, err := s.withMode(args.Mode)
	if err != nil {
		return Result{}, err
	}
	name := EnsureDocx(args.Filename)
	res, err := asm.CreateFromTemplate(ctx, docstore.FromTemplate{
		Template:    args.Template,
		Category:    args.Category,
		Key:         name,
		Variables:   args.Variables,
		CleanTables: args.CleanTables,
	})
	if err != nil {
		return Result{}, err
	}

	msg := fmt.Sprintf("Document '%s' created from template '%s' in category '%s'", name, res.Template, res.Category)
	if len(args.Variables) > 0 {
		keys := slices.Sorted(maps.Keys(args.Variables))
		msg += fmt.Sprintf("\nApplied %d variable substitution(s): %s", len(keys), strings.Join(keys, ", "))
	}
	if len(res.Tables) > 0 {
		removed := 0
		for _, t := range res.Tables {
			removed += t.RowsRemoved
		}
		msg += fmt.Sprintf("\nCleaned %d table(s), removed %d row(s)", len(res.Tables), removed)
	}
	out := withURL(msg, "Document URL", s.url(ctx, s.docs(), name))
	out.Data = res
	return out, nil
}
