package presigned_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/presigned"
	"github.com/tendant/simple-document/pkg/docstore/storage/memory"
)

func setup(t *testing.T, secret string) (*httptest.Server, *docstore.Store) {
	t.Helper()

	router := chi.NewRouter()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	signer := presigned.New(
		presigned.WithSecretKey(secret),
		presigned.WithURLPattern("/files/word-documents/{key}"),
		presigned.WithBaseURL(server.URL),
	)
	store, err := docstore.NewStore(memory.New(),
		docstore.WithContainer("word-documents"),
		docstore.WithURLSigner(signer.ObjectSigner()),
	)
	require.NoError(t, err)
	presigned.Mount(router, signer, store)
	return server, store
}

func TestDownloadRoundTrip(t *testing.T) {
	server, store := setup(t, "secret")
	ctx := context.Background()

	_, err := store.Save(ctx, "reports/Q1 plan.docx", []byte("docx"))
	require.NoError(t, err)

	url, err := store.IssueURL(ctx, "reports/q1 PLAN.docx", 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, server.URL+"/files/word-documents/reports/Q1%20plan.docx?"), url)

	var buf bytes.Buffer
	var progress int64
	client := presigned.NewClient(presigned.WithProgress(func(n int64) { progress = n }))
	n, err := client.Download(ctx, url, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, int64(4), progress)
	assert.Equal(t, "docx", buf.String())

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, docstore.DocxContentType, resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Q1 plan.docx"`, resp.Header.Get("Content-Disposition"))
}

func TestDownloadRejectsTamperedURL(t *testing.T) {
	server, store := setup(t, "secret")
	ctx := context.Background()

	_, err := store.Save(ctx, "a.docx", []byte("a"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "b.docx", []byte("b"))
	require.NoError(t, err)

	url, err := store.IssueURL(ctx, "a.docx", 1)
	require.NoError(t, err)

	resp, err := http.Get(strings.Replace(url, "a.docx", "b.docx", 1))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, err = presigned.NewClient(presigned.WithRetry(1, time.Millisecond)).
		Download(ctx, server.URL+"/files/word-documents/a.docx", &bytes.Buffer{})
	assert.ErrorContains(t, err, "401")

	var derr *presigned.DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "missing_signature", derr.Code)
}

func TestDownloadMissingObject(t *testing.T) {
	server, _ := setup(t, "secret")
	signer := presigned.New(
		presigned.WithSecretKey("secret"),
		presigned.WithURLPattern("/files/word-documents/{key}"),
		presigned.WithBaseURL(server.URL),
	)
	url, err := signer.ObjectSigner().SignURL(context.Background(), "gone.docx", time.Hour)
	require.NoError(t, err)

	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadWithoutSecretFailsClosed(t *testing.T) {
	server, store := setup(t, "")
	_, err := store.Save(context.Background(), "a.docx", []byte("a"))
	require.NoError(t, err)

	_, err = store.IssueURL(context.Background(), "a.docx", 1)
	assert.ErrorIs(t, err, docstore.ErrSigningUnavailable)

	resp, err := http.Get(server.URL + "/files/word-documents/a.docx?signature=x&expires=9999999999")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
