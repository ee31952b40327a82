package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/docx"
)

const (
	groupQuickStart = "quickstart"
	groupDocument   = "document"
	groupContent    = "content"
	groupTemplate   = "template"
)

var filenameParam = Param{Name: "filename", Type: TypeString, Description: "Document name, .docx is appended when missing", Required: true}

type empty struct{}

type fileArgs struct {
	Filename string `json:"filename"`
}

type createArgs struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Author   string `json:"author"`
}

type copyArgs struct {
	Source      string `json:"source_filename"`
	Destination string `json:"destination_filename"`
}

// DocumentInfo is the payload of get_document_info
type DocumentInfo struct {
	Filename        string     `json:"filename"`
	Title           string     `json:"title,omitempty"`
	Author          string     `json:"author,omitempty"`
	Size            int64      `json:"size"`
	CreatedAt       time.Time  `json:"created_at,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at,omitempty"`
	Statistics      docx.Stats `json:"statistics"`
	ContentControls int        `json:"content_controls"`
	DownloadURL     string     `json:"download_url,omitempty"`
}

func (s *Service) registerQuickStart(r *Registry) {
	Register(r, Spec{
		Name:        "hello_world",
		Group:       groupQuickStart,
		Description: "Test the connection. No parameters needed.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		return Result{OK: true, Message: "Hello! The Word document server is running."}, nil
	})

	Register(r, Spec{
		Name:        "list_all_templates",
		Group:       groupQuickStart,
		Description: "List every document template. No parameters needed.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		return s.listTemplates(ctx, templateListArgs{})
	})

	Register(r, Spec{
		Name:        "list_all_documents",
		Group:       groupQuickStart,
		Description: "List every Word document in storage. No parameters needed.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		return s.listDocuments(ctx)
	})

	Register(r, Spec{
		Name:        "get_storage_info",
		Group:       groupQuickStart,
		Description: "Show storage configuration and contents. No parameters needed.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		return s.storageInfo(ctx)
	})

	Register(r, Spec{
		Name:        "create_test_document",
		Group:       groupQuickStart,
		Description: "Create a test document with a generated name. No parameters needed.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		return s.createDocument(ctx, createArgs{Filename: s.generatedName("test"), Title: "Test document"})
	})

	Register(r, Spec{
		Name:        "create_business_letter",
		Group:       groupQuickStart,
		Description: "Create a letter from the business_letter template in the business category. No parameters needed.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		return s.createFromTemplate(ctx, fromTemplateArgs{
			Template: "business_letter",
			Filename: s.generatedName("business_letter"),
			Category: "business",
		})
	})
}

func (s *Service) registerDocuments(r *Registry) {
	Register(r, Spec{
		Name:        "create_document",
		Group:       groupDocument,
		Description: "Create a new empty Word document with optional title and author.",
		Params: []Param{
			filenameParam,
			{Name: "title", Type: TypeString, Description: "Document title property"},
			{Name: "author", Type: TypeString, Description: "Document author property"},
		},
	}, s.createDocument)

	Register(r, Spec{
		Name:        "get_document_info",
		Group:       groupDocument,
		Description: "Get properties and statistics of a document.",
		Params:      []Param{filenameParam},
	}, s.documentInfo)

	Register(r, Spec{
		Name:        "get_document_text",
		Group:       groupDocument,
		Description: "Extract all text from a document.",
		Params:      []Param{filenameParam},
	}, func(ctx context.Context, args fileArgs) (Result, error) {
		doc, _, err := s.asm.Open(ctx, EnsureDocx(args.Filename))
		if err != nil {
			return Result{}, err
		}
		return Result{OK: true, Message: doc.Text()}, nil
	})

	Register(r, Spec{
		Name:        "get_document_outline",
		Group:       groupDocument,
		Description: "Get the paragraph and table structure of a document.",
		Params:      []Param{filenameParam},
	}, func(ctx context.Context, args fileArgs) (Result, error) {
		name := EnsureDocx(args.Filename)
		doc, _, err := s.asm.Open(ctx, name)
		if err != nil {
			return Result{}, err
		}
		outline := doc.Outline()
		return Result{OK: true, Message: fmt.Sprintf("Outline of %s (%d item(s))", name, len(outline)), Data: outline}, nil
	})

	Register(r, Spec{
		Name:        "list_available_documents",
		Group:       groupDocument,
		Description: "List all Word documents in storage with their expiry state.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		return s.listDocuments(ctx)
	})

	Register(r, Spec{
		Name:        "copy_document",
		Group:       groupDocument,
		Description: "Copy a document. Without a destination the copy is named <source>_copy.docx.",
		Params: []Param{
			{Name: "source_filename", Type: TypeString, Description: "Document to copy", Required: true},
			{Name: "destination_filename", Type: TypeString, Description: "Name of the copy"},
		},
	}, func(ctx context.Context, args copyArgs) (Result, error) {
		src := EnsureDocx(args.Source)
		res, err := s.asm.Copy(ctx, src, EnsureDocx(args.Destination))
		if err != nil {
			return Result{}, err
		}
		return withURL(fmt.Sprintf("Document %s copied to %s", src, res.Key), "Document URL", s.url(ctx, s.docs(), res.Key)), nil
	})

	Register(r, Spec{
		Name:        "check_document_exists",
		Group:       groupDocument,
		Description: "Check whether a document exists and show storage diagnostics.",
		Params:      []Param{filenameParam},
	}, s.checkExists)

	Register(r, Spec{
		Name:        "download_document",
		Group:       groupDocument,
		Description: "Get a temporary download URL for a document.",
		Params:      []Param{filenameParam},
	}, func(ctx context.Context, args fileArgs) (Result, error) {
		name := EnsureDocx(args.Filename)
		url, err := s.docs().IssueURL(ctx, name, s.urlHours)
		if err != nil {
			return Result{}, fmt.Errorf("document %s is not available for download: %w", name, err)
		}
		return Result{OK: true, Message: fmt.Sprintf("Download URL for %s: %s", name, url), URL: url}, nil
	})

	Register(r, Spec{
		Name:        "debug_storage",
		Group:       groupDocument,
		Description: "Show storage configuration and contents.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		return s.storageInfo(ctx)
	})

	Register(r, Spec{
		Name:        "cleanup_expired_documents",
		Group:       groupDocument,
		Description: "Delete every expired document.",
	}, func(ctx context.Context, _ empty) (Result, error) {
		res, err := s.docs().Cleanup(ctx)
		if res == nil {
			return Result{}, err
		}
		msg := fmt.Sprintf("Cleanup completed: deleted %d expired document(s)", res.Deleted)
		if err != nil {
			return Result{
				OK:      false,
				Message: fmt.Sprintf("Cleanup failed: deleted %d expired document(s), %d failed: %v", res.Deleted, len(res.Failed), err),
				Data:    res,
			}, nil
		}
		return Result{OK: true, Message: msg, Data: res}, nil
	})
}

func (s *Service) createDocument(ctx context.Context, args createArgs) (Result, error) {
	name := EnsureDocx(args.Filename)
	if _, err := s.asm.Create(ctx, name, docx.CoreProperties{Title: args.Title, Author: args.Author}); err != nil {
		return Result{}, err
	}
	return withURL(fmt.Sprintf("Document %s created successfully.", name), "Access URL", s.url(ctx, s.docs(), name)), nil
}

func (s *Service) documentInfo(ctx context.Context, args fileArgs) (Result, error) {
	doc, blob, err := s.asm.Open(ctx, EnsureDocx(args.Filename))
	if err != nil {
		return Result{}, err
	}
	stats, err := doc.Stats()
	if err != nil {
		return Result{}, err
	}
	props := doc.CoreProperties()
	info := DocumentInfo{
		Filename:        blob.Key,
		Title:           props.Title,
		Author:          props.Author,
		Size:            blob.Size,
		CreatedAt:       blob.CreatedAt,
		ExpiresAt:       blob.ExpiresAt,
		Statistics:      stats,
		ContentControls: len(doc.ContentControls()),
		DownloadURL:     s.url(ctx, s.docs(), blob.Key),
	}
	return Result{OK: true, Message: fmt.Sprintf("Document %s (%s)", blob.Key, size(blob.Size)), URL: info.DownloadURL, Data: info}, nil
}

// listDocuments renders one block per .docx blob. URLs are only issued
// for live blobs because issuing one deletes an expired blob.
func (s *Service) listDocuments(ctx context.Context) (Result, error) {
	entries, err := s.docs().List(ctx)
	if err != nil {
		return Result{}, err
	}
	docs := entries[:0:0]
	for _, e := range entries {
		if strings.HasSuffix(strings.ToLower(e.Key), ".docx") {
			docs = append(docs, e)
		}
	}
	if len(docs) == 0 {
		return Result{OK: true, Message: "No Word documents found in storage", Data: docs}, nil
	}

	now := s.now()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d Word documents in storage:\n", len(docs))
	for _, e := range docs {
		status := ""
		if e.Expired {
			status = " (EXPIRED)"
		}
		fmt.Fprintf(&sb, "- %s (%s)%s\n", e.Key, size(e.Size), status)
		created := "Unknown"
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&sb, "  Created: %s\n", created)
		expires := "No expiry"
		if !e.ExpiresAt.IsZero() {
			expires = fmt.Sprintf("%s (%s)", e.ExpiresAt.UTC().Format(time.RFC3339), humanize.RelTime(e.ExpiresAt, now, "ago", "from now"))
		}
		fmt.Fprintf(&sb, "  Expires: %s\n", expires)
		if !e.Expired {
			if url := s.url(ctx, s.docs(), e.Key); url != "" {
				fmt.Fprintf(&sb, "  URL: %s\n", url)
			}
		}
	}
	return Result{OK: true, Message: strings.TrimSuffix(sb.String(), "\n"), Data: docs}, nil
}

func (s *Service) checkExists(ctx context.Context, args fileArgs) (Result, error) {
	name := EnsureDocx(args.Filename)
	lines := []string{"Document check for: " + name}

	blob, err := s.docs().Get(ctx, name)
	switch {
	case err == nil:
		lines = append(lines, "Found: Yes")
		if blob.Key != name {
			lines = append(lines, "Message: resolved case-insensitively to "+blob.Key)
		} else {
			lines = append(lines, "Message: document found")
		}
		lines = append(lines, fmt.Sprintf("Size: %d bytes", blob.Size))
	case docstore.IsNotFound(err):
		lines = append(lines, "Found: No", "Message: "+err.Error())
	default:
		return Result{}, err
	}

	listing, err := s.listDocuments(ctx)
	if err != nil {
		return Result{}, err
	}
	lines = append(lines, "", "--- Available Documents ---", listing.Message)
	return Result{OK: true, Message: strings.Join(lines, "\n"), Data: map[string]any{"filename": name, "found": blob != nil}}, nil
}

func (s *Service) storageInfo(ctx context.Context) (Result, error) {
	docs, err := s.docs().Info(ctx)
	if err != nil {
		return Result{}, err
	}
	data := map[string]*docstore.StorageInfo{"documents": docs}
	msg := fmt.Sprintf("Documents: %s backend, container %s, %d blob(s), %s",
		docs.Backend, docs.Container, docs.BlobCount, size(docs.TotalBytes))
	if !docs.Remote {
		msg += ", local storage (no expiry)"
	}

	if repo := s.asm.Templates(); repo != nil {
		tmpl, err := repo.Store().Info(ctx)
		if err != nil {
			s.logger.Warn("template storage info unavailable", "error", err)
		} else {
			data["templates"] = tmpl
			msg += fmt.Sprintf("\nTemplates: %s backend, container %s, %d blob(s), %s",
				tmpl.Backend, tmpl.Container, tmpl.BlobCount, size(tmpl.TotalBytes))
		}
	}
	return Result{OK: true, Message: msg, Data: data}, nil
}
