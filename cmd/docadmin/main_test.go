package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore/config"
	"github.com/tendant/simple-document/pkg/docstore/docx/docxtest"
)

func newApp(t *testing.T, opts ...config.Option) *config.App {
	t.Helper()
	cfg, err := config.Load(append([]config.Option{config.WithStorageURL("memory://")}, opts...)...)
	require.NoError(t, err)
	app, err := cfg.Build(context.Background(), nil)
	require.NoError(t, err)
	return app
}

func execute(t *testing.T, app *config.App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(func(cmd *cobra.Command) (*config.App, error) { return app, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTools(t *testing.T) {
	out, err := execute(t, newApp(t), "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "create_document_from_template")
	assert.Contains(t, out, "template_name")
}

func TestRun(t *testing.T) {
	app := newApp(t)

	out, err := execute(t, app, "run", "create_document", `{"filename": "memo", "title": "Memo"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "memo.docx")

	_, err = execute(t, app, "run", "add_paragraph", `{"filename": "memo", "text": "Hello there"}`)
	require.NoError(t, err)

	out, err = execute(t, app, "run", "get_document_text", `{"filename": "memo"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Hello there")

	out, err = execute(t, app, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "memo.docx")
	assert.Contains(t, out, "1 document(s)")
}

func TestRun_Errors(t *testing.T) {
	app := newApp(t)

	_, err := execute(t, app, "run", "no_such_command")
	assert.Error(t, err)

	_, err = execute(t, app, "run", "create_document", "{not json")
	assert.EqualError(t, err, "arguments are not valid JSON")

	out, err := execute(t, app, "run", "get_document_text", `{"filename": "ghost"}`)
	assert.EqualError(t, err, "command failed")
	assert.Contains(t, out, "ghost")
}

func TestUploadDownload(t *testing.T) {
	app := newApp(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "offer.docx")
	require.NoError(t, os.WriteFile(src, docxtest.Build(t, docxtest.Package{Body: docxtest.P("Dear {{client}}")}), 0o644))

	out, err := execute(t, app, "upload", src, "--template", "--category", "sales", "--description", "Offer letter")
	require.NoError(t, err)
	assert.Contains(t, out, "Template sales/offer.docx saved")

	out, err = execute(t, app, "templates", "--category", "sales")
	require.NoError(t, err)
	assert.Contains(t, out, "Offer letter")

	out, err = execute(t, app, "upload", src, "--name", "draft", "--no-expiry")
	require.NoError(t, err)
	assert.Contains(t, out, "Document draft.docx saved")

	out, err = execute(t, app, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "never")

	dst := filepath.Join(dir, "copy.docx")
	_, err = execute(t, app, "download", "draft", "-o", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	want, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, want, data)

	_, err = execute(t, app, "download", "ghost", "-o", dst)
	assert.Error(t, err)
}

func TestUpload_NotDocx(t *testing.T) {
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("plain text"), 0o644))

	_, err := execute(t, newApp(t), "upload", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a Word document")
}

func TestFetch(t *testing.T) {
	var handler http.Handler = http.NotFoundHandler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	cfg, err := config.Load(config.WithStorageURL("memory://"), config.WithSigningKey("secret"))
	require.NoError(t, err)
	cfg.PublicBaseURL = srv.URL
	app, err := cfg.Build(context.Background(), nil)
	require.NoError(t, err)
	handler = app.Handler()

	res, err := app.Registry.DispatchMap(context.Background(), "create_document", map[string]any{"filename": "signed"})
	require.NoError(t, err)
	require.NotEmpty(t, res.URL)

	dst := filepath.Join(t.TempDir(), "signed.docx")
	out, err := execute(t, app, "fetch", res.URL, "-o", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+dst)

	blob, err := app.Documents.Get(context.Background(), "signed.docx")
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, blob.Data, data)

	_, err = execute(t, app, "fetch", res.URL)
	assert.EqualError(t, err, "--output is required")
}

func TestCleanupAndInfo(t *testing.T) {
	app := newApp(t)
	_, err := execute(t, app, "run", "create_document", `{"filename": "a"}`)
	require.NoError(t, err)

	out, err := execute(t, app, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "word-documents: deleted 0 expired blob(s)")
	assert.Contains(t, out, "word-templates: deleted 0 expired blob(s)")

	out, err = execute(t, app, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "word-documents (memory)")
	assert.Contains(t, out, "Blobs: 1")
}
