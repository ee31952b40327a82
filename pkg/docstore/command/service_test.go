package command_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/command"
	"github.com/tendant/simple-document/pkg/docstore/docx"
	"github.com/tendant/simple-document/pkg/docstore/docx/docxtest"
	"github.com/tendant/simple-document/pkg/docstore/mutate"
	"github.com/tendant/simple-document/pkg/docstore/storage/memory"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type signer struct{}

func (signer) SignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://files.example/" + key + "?sig=x", nil
}

type env struct {
	now       time.Time
	docs      *docstore.Store
	templates *docstore.TemplateRepository
	reg       *command.Registry
}

func newEnv(t *testing.T, signed bool) *env {
	t.Helper()
	e := &env{now: epoch}
	clock := func() time.Time { return e.now }
	opts := []docstore.Option{docstore.WithClock(clock)}
	if signed {
		opts = append(opts, docstore.WithURLSigner(signer{}))
	}

	docs, err := docstore.NewStore(memory.New(), append(opts, docstore.WithContainer("word-documents"))...)
	require.NoError(t, err)
	tstore, err := docstore.NewStore(memory.New(), append(opts, docstore.WithContainer("word-templates"))...)
	require.NoError(t, err)

	e.docs = docs
	e.templates = docstore.NewTemplateRepository(tstore)
	e.reg = command.Build(docstore.NewAssembler(docs, e.templates),
		command.WithClock(clock),
		command.WithIDGenerator(func() string { return "abcd1234" }),
	)
	return e
}

func (e *env) call(t *testing.T, name string, args map[string]any) command.Result {
	t.Helper()
	res, err := e.reg.DispatchMap(context.Background(), name, args)
	require.NoError(t, err)
	return res
}

func (e *env) put(t *testing.T, key string, pkg docxtest.Package) {
	t.Helper()
	_, err := e.docs.Save(context.Background(), key, docxtest.Build(t, pkg))
	require.NoError(t, err)
}

func (e *env) open(t *testing.T, key string) *docx.Document {
	t.Helper()
	blob, err := e.docs.Get(context.Background(), key)
	require.NoError(t, err)
	doc, err := docx.Decode(blob.Data)
	require.NoError(t, err)
	return doc
}

func TestEnsureDocx(t *testing.T) {
	assert.Equal(t, "a.docx", command.EnsureDocx("a"))
	assert.Equal(t, "a.DOCX", command.EnsureDocx(" a.DOCX "))
	assert.Equal(t, "", command.EnsureDocx(""))
}

func TestBuild_RegistersEveryCommand(t *testing.T) {
	e := newEnv(t, false)
	names := make([]string, 0, e.reg.Len())
	for _, s := range e.reg.Specs() {
		names = append(names, s.Name)
	}
	for _, want := range []string{
		"hello_world", "list_all_templates", "list_all_documents", "get_storage_info",
		"create_test_document", "create_business_letter",
		"create_document", "get_document_info", "get_document_text", "get_document_outline",
		"list_available_documents", "copy_document", "check_document_exists", "download_document",
		"debug_storage", "cleanup_expired_documents",
		"add_paragraph", "add_heading", "add_heading_level_2", "add_table", "add_page_break",
		"delete_paragraph", "get_paragraph_text", "find_text_in_document", "search_and_replace",
		"replace_text_universal", "clean_template_tables",
		"list_document_templates", "get_template_info", "create_document_from_template",
		"add_document_template", "delete_document_template",
	} {
		assert.Contains(t, names, want)
	}
}

func TestCreateAndEditDocument(t *testing.T) {
	e := newEnv(t, true)

	res := e.call(t, "create_document", map[string]any{"filename": "report", "title": "Q1", "author": "Ada"})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "https://files.example/report.docx?sig=x", res.URL)
	assert.Contains(t, res.Message, "Document report.docx created successfully.\nAccess URL: https://files.example/report.docx?sig=x")

	require.True(t, e.call(t, "add_heading", map[string]any{"filename": "report", "text": "Summary"}).OK)
	require.True(t, e.call(t, "add_paragraph", map[string]any{"filename": "report.docx", "text": "Revenue grew."}).OK)
	require.True(t, e.call(t, "add_heading_level_2", map[string]any{"filename": "report", "text": "Details"}).OK)
	require.True(t, e.call(t, "add_table", map[string]any{"filename": "report", "rows": 2, "cols": 3}).OK)
	require.True(t, e.call(t, "add_page_break", map[string]any{"filename": "report"}).OK)

	doc := e.open(t, "report.docx")
	paras := doc.Paragraphs()
	require.Len(t, paras, 4)
	assert.Equal(t, "Heading1", paras[0].Style())
	assert.Equal(t, "Revenue grew.", paras[1].Text())
	assert.Equal(t, "Heading2", paras[2].Style())
	require.Len(t, doc.Tables(), 1)
	assert.Equal(t, docx.CoreProperties{Title: "Q1", Author: "Ada"}, doc.CoreProperties())

	res = e.call(t, "get_paragraph_text", map[string]any{"filename": "report", "paragraph_index": 1})
	require.True(t, res.OK)
	assert.Equal(t, "Revenue grew.", res.Message)

	res = e.call(t, "delete_paragraph", map[string]any{"filename": "report", "paragraph_index": 0})
	require.True(t, res.OK)
	assert.Equal(t, "Revenue grew.", e.open(t, "report.docx").Paragraphs()[0].Text())

	res = e.call(t, "delete_paragraph", map[string]any{"filename": "report", "paragraph_index": 42})
	assert.False(t, res.OK)
	assert.True(t, res.Invalid)

	res = e.call(t, "add_table", map[string]any{"filename": "report", "rows": 0, "cols": 3})
	assert.False(t, res.OK)
	assert.True(t, res.Invalid)
}

func TestAddParagraph_CreatesMissingDocument(t *testing.T) {
	e := newEnv(t, false)

	res := e.call(t, "add_paragraph", map[string]any{"filename": "fresh", "text": "hello"})
	require.True(t, res.OK)
	assert.Empty(t, res.URL)
	assert.Equal(t, "Paragraph added to fresh.docx", res.Message)
	assert.Equal(t, "hello", e.open(t, "fresh.docx").Paragraphs()[0].Text())
}

func TestMissingDocument(t *testing.T) {
	e := newEnv(t, false)

	for _, name := range []string{"get_document_info", "get_document_text", "get_document_outline", "clean_template_tables"} {
		t.Run(name, func(t *testing.T) {
			res := e.call(t, name, map[string]any{"filename": "ghost"})
			assert.False(t, res.OK)
			assert.True(t, res.NotFound)
		})
	}

	res := e.call(t, "delete_paragraph", map[string]any{"filename": "ghost", "paragraph_index": 0})
	assert.True(t, res.NotFound)
	_, ok, err := e.docs.Exists(context.Background(), "ghost.docx")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentInfoTextOutline(t *testing.T) {
	e := newEnv(t, false)
	e.put(t, "memo.docx", docxtest.Package{
		Body:  docxtest.P("Hello world") + docxtest.Table([]string{"a", "b"}),
		Title: "Memo",
	})

	res := e.call(t, "get_document_info", map[string]any{"filename": "MEMO"})
	require.True(t, res.OK, res.Message)
	info, ok := res.Data.(command.DocumentInfo)
	require.True(t, ok)
	assert.Equal(t, "memo.docx", info.Filename)
	assert.Equal(t, "Memo", info.Title)
	assert.Equal(t, 1, info.Statistics.Paragraphs)
	assert.Equal(t, 1, info.Statistics.Tables)
	assert.Equal(t, epoch.Add(24*time.Hour), info.ExpiresAt)

	res = e.call(t, "get_document_text", map[string]any{"filename": "memo"})
	assert.Equal(t, "Hello world\na\nb\n", res.Message)

	res = e.call(t, "get_document_outline", map[string]any{"filename": "memo"})
	outline, ok := res.Data.([]docx.OutlineItem)
	require.True(t, ok)
	assert.Len(t, outline, 2)
}

func TestListAndCleanup(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	_, err := e.docs.Save(ctx, "old.docx", []byte("x"), docstore.WithTTL(1))
	require.NoError(t, err)
	_, err = e.docs.Save(ctx, "new.docx", []byte("xx"), docstore.WithTTL(48))
	require.NoError(t, err)
	_, err = e.docs.Save(ctx, "notes.txt", []byte("x"))
	require.NoError(t, err)
	e.now = epoch.Add(2 * time.Hour)

	res := e.call(t, "list_available_documents", nil)
	require.True(t, res.OK)
	assert.True(t, strings.HasPrefix(res.Message, "Found 2 Word documents in storage:\n"))
	assert.Contains(t, res.Message, "- old.docx (1 B) (EXPIRED)\n")
	assert.Contains(t, res.Message, "  Created: 2024-03-01T12:00:00Z\n")
	assert.Contains(t, res.Message, "- new.docx (2 B)\n")
	assert.Contains(t, res.Message, "  URL: https://files.example/new.docx?sig=x")
	assert.NotContains(t, res.Message, "old.docx?sig")

	// listing never deletes
	entries, err := e.docs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	res = e.call(t, "cleanup_expired_documents", nil)
	require.True(t, res.OK)
	assert.Equal(t, "Cleanup completed: deleted 1 expired document(s)", res.Message)

	res = e.call(t, "list_all_documents", nil)
	assert.Contains(t, res.Message, "Found 1 Word documents")
}

func TestListDocuments_Empty(t *testing.T) {
	e := newEnv(t, false)
	res := e.call(t, "list_available_documents", nil)
	assert.True(t, res.OK)
	assert.Equal(t, "No Word documents found in storage", res.Message)
}

func TestCopyCheckDownload(t *testing.T) {
	e := newEnv(t, true)
	e.put(t, "Source.docx", docxtest.Package{Body: docxtest.P("x")})

	res := e.call(t, "copy_document", map[string]any{"source_filename": "source"})
	require.True(t, res.OK, res.Message)
	assert.Contains(t, res.Message, "copied to Source_copy.docx")

	res = e.call(t, "check_document_exists", map[string]any{"filename": "source"})
	require.True(t, res.OK)
	assert.Contains(t, res.Message, "Document check for: source.docx\nFound: Yes\nMessage: resolved case-insensitively to Source.docx")
	assert.Contains(t, res.Message, "--- Available Documents ---")

	res = e.call(t, "check_document_exists", map[string]any{"filename": "ghost"})
	require.True(t, res.OK)
	assert.Contains(t, res.Message, "Found: No")

	res = e.call(t, "download_document", map[string]any{"filename": "Source"})
	require.True(t, res.OK)
	assert.Equal(t, "Download URL for Source.docx: https://files.example/Source.docx?sig=x", res.Message)
}

func TestDownload_FailsClosed(t *testing.T) {
	e := newEnv(t, false)
	e.put(t, "a.docx", docxtest.Package{Body: docxtest.P("x")})

	res := e.call(t, "download_document", map[string]any{"filename": "a"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, docstore.ErrSigningUnavailable.Error())
	assert.Empty(t, res.URL)
}

func TestReplaceTextUniversal(t *testing.T) {
	e := newEnv(t, false)
	e.put(t, "p.docx", docxtest.Package{
		Body:   docxtest.P("Client: ACME") + docxtest.P("ACME") + docxtest.Table([]string{"ACME"}),
		Header: docxtest.P("ACME proposal"),
	})

	res := e.call(t, "replace_text_universal", map[string]any{"filename": "p", "find_text": "ACME", "replace_text": "Globex"})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Replaced 'ACME' with 'Globex' in p.docx\nTotal replacements: 4\nLocations:\n"+
		"  - Body paragraphs: 2\n  - Table 1: 1\n  - Header section 1: 1", res.Message)
	report, ok := res.Data.(*mutate.ReplaceReport)
	require.True(t, ok)
	assert.Equal(t, 0, report.ContentControls)

	res = e.call(t, "search_and_replace", map[string]any{"filename": "p", "find_text": "ACME", "replace_text": "x"})
	require.True(t, res.OK)
	assert.Equal(t, "No occurrences of 'ACME' found in p.docx", res.Message)

	res = e.call(t, "replace_text_universal", map[string]any{"filename": "p", "find_text": "a", "replace_text": "b", "mode": "word"})
	assert.True(t, res.Invalid)
}

func TestFindText(t *testing.T) {
	e := newEnv(t, false)
	e.put(t, "f.docx", docxtest.Package{Body: docxtest.P("Alpha beta") + docxtest.P("gamma") + docxtest.Table([]string{"BETA"})})

	res := e.call(t, "find_text_in_document", map[string]any{"filename": "f", "text_to_find": "beta"})
	require.True(t, res.OK)
	matches := res.Data.([]command.Match)
	require.Len(t, matches, 1)
	assert.Equal(t, command.Match{Location: "Body paragraphs", Paragraph: 0, Text: "Alpha beta"}, matches[0])

	res = e.call(t, "find_text_in_document", map[string]any{"filename": "f", "text_to_find": "beta", "match_case": false})
	assert.Len(t, res.Data.([]command.Match), 2)
}

func TestTemplateCommands(t *testing.T) {
	e := newEnv(t, true)
	e.put(t, "draft.docx", docxtest.Package{
		Body: docxtest.P("Dear {{client}},") + docxtest.Table([]string{"Offer"}, []string{"Item", "Price"}, []string{"old", "1"}),
	})

	res := e.call(t, "add_document_template", map[string]any{"source_document": "draft", "template_name": "proposal.docx", "category": "sales"})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Template 'proposal' saved successfully in category 'sales'\nTemplate URL: https://files.example/sales/proposal.docx?sig=x", res.Message)
	tmpl := res.Data.(*docstore.Template)
	assert.Equal(t, command.DefaultTemplateAuthor, tmpl.Author)

	res = e.call(t, "list_document_templates", map[string]any{"category": "sales"})
	require.True(t, res.OK)
	listing := res.Data.(command.TemplateListing)
	assert.Equal(t, 1, listing.Total)
	assert.Equal(t, "sales", listing.Category)
	assert.Equal(t, "https://files.example/sales/proposal.docx?sig=x", listing.Templates[0].DownloadURL)

	res = e.call(t, "get_template_info", map[string]any{"template_name": "proposal", "category": "sales"})
	require.True(t, res.OK)
	details := res.Data.(*docstore.TemplateDetails)
	assert.Equal(t, []string{"client"}, details.Variables)

	res = e.call(t, "create_document_from_template", map[string]any{
		"template_name":     "proposal",
		"new_document_name": "acme",
		"category":          "sales",
		"variables":         map[string]any{"{{client}}": "Acme"},
		"clean_tables":      true,
	})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Document 'acme.docx' created from template 'proposal' in category 'sales'\n"+
		"Applied 1 variable substitution(s): {{client}}\n"+
		"Cleaned 1 table(s), removed 1 row(s)\n"+
		"Document URL: https://files.example/acme.docx?sig=x", res.Message)
	doc := e.open(t, "acme.docx")
	assert.Equal(t, "Dear Acme,", doc.Paragraphs()[0].Text())
	assert.Len(t, doc.Tables()[0].Rows(), 2)

	res = e.call(t, "create_document_from_template", map[string]any{"template_name": "nope", "new_document_name": "x"})
	assert.True(t, res.NotFound)

	res = e.call(t, "delete_document_template", map[string]any{"template_name": "proposal", "category": "sales"})
	require.True(t, res.OK)
	assert.Equal(t, "Template 'proposal' deleted successfully", res.Message)

	res = e.call(t, "list_all_templates", nil)
	assert.Equal(t, "No templates found", res.Message)
}

func TestAddTemplate_RejectsInvalidDocument(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.docs.Save(context.Background(), "junk.docx", []byte("junk"))
	require.NoError(t, err)

	res := e.call(t, "add_document_template", map[string]any{"source_document": "junk", "template_name": "junk"})
	assert.False(t, res.OK)
	assert.True(t, res.Invalid)
}

func TestQuickStart(t *testing.T) {
	e := newEnv(t, false)

	res := e.call(t, "hello_world", nil)
	assert.True(t, res.OK)

	res = e.call(t, "create_test_document", nil)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Document test_20240301_120000_abcd1234.docx created successfully.", res.Message)

	res = e.call(t, "create_business_letter", nil)
	assert.True(t, res.NotFound)

	res = e.call(t, "get_storage_info", nil)
	require.True(t, res.OK)
	data := res.Data.(map[string]*docstore.StorageInfo)
	assert.Equal(t, 1, data["documents"].BlobCount)
	assert.Equal(t, "word-templates", data["templates"].Container)
	assert.True(t, strings.HasPrefix(res.Message, "Documents: memory backend, container word-documents, 1 blob(s)"))
}

func TestDispatch_RequiredParams(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.reg.Dispatch(context.Background(), "add_table", json.RawMessage(`{"filename": "a", "rows": 1}`))
	assert.ErrorIs(t, err, command.ErrInvalidArguments)

	_, err = e.reg.Dispatch(context.Background(), "create_document", json.RawMessage(`{"filename": ""}`))
	assert.ErrorIs(t, err, command.ErrInvalidArguments)
	assert.Contains(t, fmt.Sprint(err), "filename")
}
