package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/simple-document/pkg/docstore/docx"
	"github.com/tendant/simple-document/pkg/docstore/mutate"
)

// MutateFunc edits a decoded document. found is false when the key did not
// resolve to a live blob and doc is a blank document. Returning an error
// aborts the operation before anything is written.
type MutateFunc func(doc *docx.Document, found bool) error

// errUnchanged is returned by a MutateFunc that left the document as it was.
// OpenAndMutate then skips the write so the blob keeps its timestamps.
var errUnchanged = errors.New("document unchanged")

// Existing wraps fn so that a missing document fails with ErrNotFound
// instead of starting from a blank one
func Existing(key string, fn func(doc *docx.Document) error) MutateFunc {
	return func(doc *docx.Document, found bool) error {
		if !found {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fn(doc)
	}
}

// Assembler loads, mutates and saves documents. A mutation either fully
// succeeds or leaves the stored blob untouched: decoding and the mutation
// run before the single write.
type Assembler struct {
	docs      *Store
	templates *TemplateRepository
	mode      mutate.Mode
	logger    *slog.Logger
}

// AssemblerOption configures an Assembler
type AssemblerOption func(*Assembler)

// WithSubstitutionMode selects how substitutions match run text
func WithSubstitutionMode(mode mutate.Mode) AssemblerOption {
	return func(a *Assembler) {
		a.mode = mode
	}
}

// WithAssemblerLogger sets the logger
func WithAssemblerLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// NewAssembler creates an Assembler over a document store and a template
// repository. templates may be nil when no template operation is used.
func NewAssembler(docs *Store, templates *TemplateRepository, opts ...AssemblerOption) *Assembler {
	a := &Assembler{docs: docs, templates: templates, mode: mutate.ModeRun, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Documents returns the document store
func (a *Assembler) Documents() *Store {
	return a.docs
}

// Templates returns the template repository
func (a *Assembler) Templates() *TemplateRepository {
	return a.templates
}

// Mode returns the substitution mode
func (a *Assembler) Mode() mutate.Mode {
	return a.mode
}

// WithMode returns a copy of a using mode for substitutions
func (a *Assembler) WithMode(mode mutate.Mode) *Assembler {
	c := *a
	c.mode = mode
	return &c
}

func (a *Assembler) requireTemplates() error {
	if a.templates == nil {
		return errors.New("template repository not configured")
	}
	return nil
}

func decode(key string, data []byte) (*docx.Document, error) {
	doc, err := docx.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
	}
	return doc, nil
}

// Open loads and decodes the document stored under key
func (a *Assembler) Open(ctx context.Context, key string) (*docx.Document, *Blob, error) {
	blob, err := a.docs.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	doc, err := decode(blob.Key, blob.Data)
	if err != nil {
		return nil, nil, err
	}
	return doc, blob, nil
}

// OpenAndMutate loads key (or a blank document when it does not exist),
// applies fn and saves the result under the key the blob was found at.
// An existing blob keeps its TTL.
func (a *Assembler) OpenAndMutate(ctx context.Context, key string, fn MutateFunc) (*SaveResult, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	target := key
	found := false
	var doc *docx.Document
	var opts []SaveOption

	blob, err := a.docs.Get(ctx, key)
	switch {
	case err == nil:
		if doc, err = decode(blob.Key, blob.Data); err != nil {
			return nil, err
		}
		target, found = blob.Key, true
		if blob.TTLHours > 0 {
			opts = append(opts, WithTTL(blob.TTLHours))
		}
	case IsNotFound(err):
		doc = docx.New()
	default:
		return nil, err
	}

	if err := fn(doc, found); err != nil {
		if found && errors.Is(err, errUnchanged) {
			a.logger.Debug("document unchanged", "key", target)
			return &SaveResult{
				Key:       blob.Key,
				Size:      blob.Size,
				CreatedAt: blob.CreatedAt,
				ExpiresAt: blob.ExpiresAt,
				TTLHours:  blob.TTLHours,
				Remote:    a.docs.RemoteEnabled(),
			}, nil
		}
		return nil, err
	}
	data, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", target, err)
	}
	res, err := a.docs.Save(ctx, target, data, opts...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("document mutated", "key", target, "existed", found, "size", res.Size)
	return res, nil
}

// Create saves a new blank document under key with the given core
// properties, replacing any existing document
func (a *Assembler) Create(ctx context.Context, key string, props docx.CoreProperties) (*SaveResult, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	doc := docx.New()
	if err := doc.SetCoreProperties(props); err != nil {
		return nil, err
	}
	data, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return a.docs.Save(ctx, key, data)
}

// Copy duplicates the document at src under dst. An empty dst becomes
// "<src>_copy.docx".
func (a *Assembler) Copy(ctx context.Context, src, dst string) (*SaveResult, error) {
	blob, err := a.docs.Get(ctx, src)
	if err != nil {
		return nil, err
	}
	if dst == "" {
		dst = strings.TrimSuffix(blob.Key, docxExt) + "_copy" + docxExt
	}
	return a.docs.Save(ctx, dst, blob.Data)
}

// FromTemplate describes a CreateFromTemplate call
type FromTemplate struct {
	Template    string
	Category    string
	Key         string            // output document key
	Variables   map[string]string // literal token -> value, e.g. "{{name}}" -> "Ada"
	CleanTables bool
}

// TemplateResult reports a CreateFromTemplate call
type TemplateResult struct {
	Save         *SaveResult             `json:"save"`
	Template     string                  `json:"template"`
	Category     string                  `json:"category"`
	Substitution mutate.SubstituteReport `json:"substitution"`
	Tables       []mutate.CleanReport    `json:"tables,omitempty"`
}

// CreateFromTemplate copies a template into a new document, substitutes
// variables in every scope and optionally cleans the tables
func (a *Assembler) CreateFromTemplate(ctx context.Context, req FromTemplate) (*TemplateResult, error) {
	if err := a.requireTemplates(); err != nil {
		return nil, err
	}
	if req.Key == "" {
		return nil, ErrInvalidKey
	}
	category := normalizeCategory(req.Category)
	blob, err := a.templates.Get(ctx, req.Template, category)
	if err != nil {
		return nil, err
	}
	doc, err := decode(blob.Key, blob.Data)
	if err != nil {
		return nil, err
	}

	res := &TemplateResult{Template: NormalizeTemplateName(req.Template), Category: category}
	if res.Substitution, err = mutate.Substitute(doc, req.Variables, a.mode); err != nil {
		return nil, err
	}
	if req.CleanTables {
		res.Tables = mutate.CleanTables(doc)
	}

	data, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Key, err)
	}
	if res.Save, err = a.docs.Save(ctx, req.Key, data); err != nil {
		return nil, err
	}
	a.logger.Info("document created from template",
		"key", req.Key, "template", blob.Key, "replacements", res.Substitution.Replacements)
	return res, nil
}

// ReplaceEverywhere replaces find with replace across every scope of the
// document at key and saves it
func (a *Assembler) ReplaceEverywhere(ctx context.Context, key, find, replace string) (*mutate.ReplaceReport, error) {
	var report mutate.ReplaceReport
	_, err := a.OpenAndMutate(ctx, key, Existing(key, func(doc *docx.Document) error {
		var err error
		report, err = mutate.ReplaceEverywhere(doc, find, replace, a.mode)
		if err == nil && report.Total == 0 {
			return errUnchanged
		}
		return err
	}))
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// CleanTables trims every table of the document at key to its title and
// header rows and saves it
func (a *Assembler) CleanTables(ctx context.Context, key string) ([]mutate.CleanReport, error) {
	var reports []mutate.CleanReport
	_, err := a.OpenAndMutate(ctx, key, Existing(key, func(doc *docx.Document) error {
		reports = mutate.CleanTables(doc)
		for _, r := range reports {
			if r.RowsRemoved > 0 {
				return nil
			}
		}
		return errUnchanged
	}))
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// AddTemplate stores the document at sourceKey as a template after
// checking that it decodes
func (a *Assembler) AddTemplate(ctx context.Context, sourceKey, name string, info TemplateInfo) (*Template, error) {
	if err := a.requireTemplates(); err != nil {
		return nil, err
	}
	blob, err := a.docs.Get(ctx, sourceKey)
	if err != nil {
		return nil, err
	}
	if _, err := decode(blob.Key, blob.Data); err != nil {
		return nil, err
	}
	return a.templates.Save(ctx, name, blob.Data, info)
}

// TemplateDetails describes the content of one template
type TemplateDetails struct {
	Name        string             `json:"name"`
	Category    string             `json:"category"`
	Key         string             `json:"key"`
	Statistics  docx.Stats         `json:"statistics"`
	Structure   []docx.OutlineItem `json:"structure"`
	Variables   []string           `json:"variables_found"`
	DownloadURL string             `json:"download_url,omitempty"`
}

// DescribeTemplate decodes a template and reports its statistics, outline
// and {{variable}} tokens. urlHours > 0 attaches a download URL when
// signing is available.
func (a *Assembler) DescribeTemplate(ctx context.Context, name, category string, urlHours int) (*TemplateDetails, error) {
	if err := a.requireTemplates(); err != nil {
		return nil, err
	}
	blob, err := a.templates.Get(ctx, name, category)
	if err != nil {
		return nil, err
	}
	doc, err := decode(blob.Key, blob.Data)
	if err != nil {
		return nil, err
	}
	stats, err := doc.Stats()
	if err != nil {
		return nil, err
	}
	vars, err := mutate.FindVariables(doc)
	if err != nil {
		return nil, err
	}
	details := &TemplateDetails{
		Name:       NormalizeTemplateName(name),
		Category:   normalizeCategory(category),
		Key:        blob.Key,
		Statistics: stats,
		Structure:  doc.Outline(),
		Variables:  vars,
	}
	if urlHours > 0 && a.templates.Store().SigningAvailable() {
		if url, err := a.templates.Store().IssueURL(ctx, blob.Key, urlHours); err == nil {
			details.DownloadURL = url
		}
	}
	return details, nil
}
