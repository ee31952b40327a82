package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// DefaultCategory is used when a template is saved or looked up without one
const DefaultCategory = "general"

const (
	docxExt        = ".docx"
	legacyRootPath = "templates"
)

// Template describes one stored template
type Template struct {
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	Created     time.Time `json:"created,omitempty"`
	URL         string    `json:"url,omitempty"`
	Legacy      bool      `json:"legacy,omitempty"`
}

// TemplateInfo is the descriptive metadata stored with a template
type TemplateInfo struct {
	Category    string
	Description string
	Author      string
}

// TemplateRepository maps (category, name) pairs to blobs of a Store.
// Templates are saved without TTL metadata and never expire.
type TemplateRepository struct {
	store    *Store
	urlHours int
	logger   *slog.Logger
}

// TemplateOption configures a TemplateRepository
type TemplateOption func(*TemplateRepository)

// WithListURLHours sets the lifetime of URLs attached by List. Zero
// disables URLs in listings.
func WithListURLHours(hours int) TemplateOption {
	return func(r *TemplateRepository) {
		r.urlHours = hours
	}
}

// WithTemplateLogger sets the logger
func WithTemplateLogger(logger *slog.Logger) TemplateOption {
	return func(r *TemplateRepository) {
		r.logger = logger
	}
}

// NewTemplateRepository creates a repository over store
func NewTemplateRepository(store *Store, opts ...TemplateOption) *TemplateRepository {
	r := &TemplateRepository{store: store, urlHours: 24, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying store
func (r *TemplateRepository) Store() *Store {
	return r.store
}

// NormalizeTemplateName strips a .docx extension and surrounding space
func NormalizeTemplateName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(strings.ToLower(name), docxExt) {
		name = name[:len(name)-len(docxExt)]
	}
	return name
}

func normalizeCategory(category string) string {
	if c := strings.Trim(strings.TrimSpace(category), "/"); c != "" {
		return c
	}
	return DefaultCategory
}

// TemplateKey returns the primary key category/name.docx
func TemplateKey(name, category string) string {
	return normalizeCategory(category) + "/" + NormalizeTemplateName(name) + docxExt
}

// LegacyTemplateKey returns the legacy key templates/category/name.docx
func LegacyTemplateKey(name, category string) string {
	return legacyRootPath + "/" + TemplateKey(name, category)
}

func validateName(name string) (string, error) {
	n := NormalizeTemplateName(name)
	if n == "" || strings.Contains(n, "/") {
		return "", fmt.Errorf("%w: template name %q", ErrInvalidKey, name)
	}
	return n, nil
}

// layout ranks: primary beats root-level beats legacy
const (
	layoutPrimary = iota
	layoutRoot
	layoutLegacy
)

// parseTemplateKey recognises category/name.docx, templates/category/name.docx
// and bare name.docx keys
func parseTemplateKey(key string, meta map[string]string) (name, category string, layout int, ok bool) {
	if !strings.HasSuffix(strings.ToLower(key), docxExt) {
		return "", "", 0, false
	}
	parts := strings.Split(key[:len(key)-len(docxExt)], "/")
	switch {
	case len(parts) == 3 && parts[0] == legacyRootPath:
		return parts[2], parts[1], layoutLegacy, parts[2] != ""
	case len(parts) == 2 && parts[0] != legacyRootPath:
		return parts[1], parts[0], layoutPrimary, parts[1] != ""
	case len(parts) == 1:
		return parts[0], normalizeCategory(lookupMeta(meta, MetaCategory)), layoutRoot, parts[0] != ""
	}
	return "", "", 0, false
}

// List enumerates templates in every key layout, optionally filtered by
// category (case-insensitive). When one (category, name) pair exists under
// several layouts the primary one wins. Entries carry a download URL unless
// signing is unavailable.
func (r *TemplateRepository) List(ctx context.Context, category string) ([]Template, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		tmpl   Template
		layout int
	}
	byID := make(map[string]ranked)
	for _, e := range entries {
		name, cat, layout, ok := parseTemplateKey(e.Key, e.Metadata)
		if !ok {
			continue
		}
		if category != "" && !strings.EqualFold(cat, category) {
			continue
		}
		t := Template{
			Name:        name,
			Category:    cat,
			Key:         e.Key,
			Size:        e.Size,
			Description: lookupMeta(e.Metadata, MetaDescription),
			Author:      lookupMeta(e.Metadata, MetaAuthor),
			Created:     e.CreatedAt,
			Legacy:      layout == layoutLegacy,
		}
		if created, ok := parseTime(lookupMeta(e.Metadata, MetaCreated)); ok {
			t.Created = created
		}
		id := strings.ToLower(cat) + "/" + strings.ToLower(name)
		if prev, seen := byID[id]; seen && prev.layout <= layout {
			continue
		}
		byID[id] = ranked{tmpl: t, layout: layout}
	}

	out := make([]Template, 0, len(byID))
	for _, rk := range byID {
		out = append(out, rk.tmpl)
	}
	slices.SortFunc(out, func(a, b Template) int {
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	if r.urlHours > 0 && r.store.SigningAvailable() {
		for i := range out {
			url, err := r.store.IssueURL(ctx, out[i].Key, r.urlHours)
			if err != nil {
				r.logger.Debug("template url omitted", "key", out[i].Key, "error", err)
				continue
			}
			out[i].URL = url
		}
	}
	return out, nil
}

// resolve returns the stored key for (name, category), trying the primary
// layout before the legacy one
func (r *TemplateRepository) resolve(ctx context.Context, name, category string) (string, error) {
	n, err := validateName(name)
	if err != nil {
		return "", err
	}
	for _, key := range []string{TemplateKey(n, category), LegacyTemplateKey(n, category)} {
		resolved, ok, err := r.store.Exists(ctx, key)
		if err != nil {
			return "", err
		}
		if ok {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: template %s in category %s", ErrNotFound, n, normalizeCategory(category))
}

// Get returns the template blob, trying the primary key and then the legacy key
func (r *TemplateRepository) Get(ctx context.Context, name, category string) (*Blob, error) {
	key, err := r.resolve(ctx, name, category)
	if err != nil {
		return nil, err
	}
	return r.store.Get(ctx, key)
}

// Save stores data under the primary key, replacing any existing template
func (r *TemplateRepository) Save(ctx context.Context, name string, data []byte, info TemplateInfo) (*Template, error) {
	n, err := validateName(name)
	if err != nil {
		return nil, err
	}
	category := normalizeCategory(info.Category)
	now := r.store.now().UTC()
	meta := map[string]string{
		MetaCategory: category,
		MetaCreated:  formatTime(now),
	}
	if info.Description != "" {
		meta[MetaDescription] = info.Description
	}
	if info.Author != "" {
		meta[MetaAuthor] = info.Author
	}

	key := TemplateKey(n, category)
	res, err := r.store.Save(ctx, key, data, WithoutExpiry(), WithMetadata(meta))
	if err != nil {
		return nil, err
	}
	r.logger.Info("template saved", "key", key, "size", res.Size)
	return &Template{
		Name:        n,
		Category:    category,
		Key:         key,
		Size:        res.Size,
		Description: info.Description,
		Author:      info.Author,
		Created:     now,
	}, nil
}

// Delete removes the template, trying the primary key and then the legacy
// key. It returns the key that was deleted.
func (r *TemplateRepository) Delete(ctx context.Context, name, category string) (string, error) {
	key, err := r.resolve(ctx, name, category)
	if err != nil {
		return "", err
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return "", err
	}
	r.logger.Info("template deleted", "key", key)
	return key, nil
}

// URL returns a signed download URL for the template valid for hours
func (r *TemplateRepository) URL(ctx context.Context, name, category string, hours int) (string, error) {
	key, err := r.resolve(ctx, name, category)
	if err != nil {
		return "", err
	}
	return r.store.IssueURL(ctx, key, hours)
}
