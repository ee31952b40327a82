package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/api"
	"github.com/tendant/simple-document/pkg/docstore/command"
	"github.com/tendant/simple-document/pkg/docstore/presigned"
	"github.com/tendant/simple-document/pkg/docstore/storage/memory"
)

const baseURL = "http://docs.test"

func newTestServer(t *testing.T, opts ...api.Option) (http.Handler, *command.Registry) {
	t.Helper()
	signer := presigned.New(
		presigned.WithSecretKey("test-secret"),
		presigned.WithURLPattern("/files/word-documents/{key}"),
		presigned.WithBaseURL(baseURL),
	)
	docs, err := docstore.NewStore(memory.New(),
		docstore.WithContainer("word-documents"),
		docstore.WithURLSigner(signer.ObjectSigner()),
	)
	require.NoError(t, err)
	tstore, err := docstore.NewStore(memory.New(), docstore.WithContainer("word-templates"))
	require.NoError(t, err)

	reg := command.Build(docstore.NewAssembler(docs, docstore.NewTemplateRepository(tstore)))
	opts = append([]api.Option{api.WithDownloads(api.Download{Signer: signer, Store: docs})}, opts...)
	return api.New(reg, opts...).Routes(), reg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestRoot(t *testing.T) {
	h, reg := newTestServer(t)

	rr := doJSON(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var card api.ServiceCard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &card))
	assert.Equal(t, "Word Document Proposal Generator", card.Name)
	assert.Equal(t, "1.0", card.Version)
	assert.Equal(t, reg.Len(), card.ToolsAvailable)
	assert.Contains(t, card.Description, "tools")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestCreateAndDownload(t *testing.T) {
	h, _ := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/create/document", map[string]any{"filename": "proposal", "title": "Proposal"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	result := decode(t, rr)["result"].(string)
	lines := strings.Split(result, "\n")
	require.Len(t, lines, 2, result)
	assert.Equal(t, "ok", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], baseURL+"/files/word-documents/proposal.docx?"), lines[1])

	req := httptest.NewRequest(http.MethodGet, lines[1], nil)
	dl := httptest.NewRecorder()
	h.ServeHTTP(dl, req)
	require.Equal(t, http.StatusOK, dl.Code, dl.Body.String())
	assert.Equal(t, docstore.DocxContentType, dl.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(dl.Body.Bytes(), []byte("PK")))
}

func TestPost_Errors(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		result string
	}{
		{"UnknownTool", "/api/make/coffee", map[string]any{}, http.StatusNotFound, ""},
		{"MissingParameter", "/api/add/paragraph", map[string]any{"text": "hi"}, http.StatusBadRequest, ""},
		{"WrongType", "/api/add/heading", map[string]any{"filename": "a", "text": "x", "level": "two"}, http.StatusBadRequest, ""},
		{"MissingDocument", "/api/get/document/text", map[string]any{"filename": "ghost"}, http.StatusOK, "error: not found"},
		{"TemplateRemoveAlias", "/api/template/remove", map[string]any{"template_name": "ghost"}, http.StatusOK, "error: not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, h, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.result != "" {
				assert.Equal(t, tt.result, decode(t, rr)["result"])
			} else {
				assert.NotEmpty(t, decode(t, rr)["detail"])
			}
		})
	}
}

func TestPost_InvalidJSON(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/add/paragraph", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGet(t *testing.T) {
	h, _ := newTestServer(t)

	rr := doJSON(t, h, http.MethodGet, "/api/hello/world", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["result"])

	rr = doJSON(t, h, http.MethodGet, "/api/add/paragraph", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Function add_paragraph requires parameters. Use POST instead.", decode(t, rr)["detail"])

	rr = doJSON(t, h, http.MethodGet, "/api/nothing/here", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListAll(t *testing.T) {
	h, _ := newTestServer(t, api.WithDebug(true))

	rr := doJSON(t, h, http.MethodPost, "/api/create/document", map[string]any{"filename": "a.docx"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/api/list/all/documents", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decode(t, rr)["result"], "Found 1 Word documents in storage:")

	rr = doJSON(t, h, http.MethodGet, "/api/list/all/templates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decode(t, rr)["result"], "No templates found")
}

func TestTools(t *testing.T) {
	h, reg := newTestServer(t)
	rr := doJSON(t, h, http.MethodGet, "/api/tools", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var specs []command.Spec
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &specs))
	assert.Len(t, specs, reg.Len())
}

func TestAPIKey(t *testing.T) {
	h, _ := newTestServer(t, api.WithAPIKey("s3cret"))

	rr := doJSON(t, h, http.MethodGet, "/api/hello/world", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized: Missing API key", decode(t, rr)["detail"])

	req := httptest.NewRequest(http.MethodGet, "/api/hello/world", nil)
	req.Header.Set("X-API-Key", "wrong")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized: Invalid API key", decode(t, rr)["detail"])

	req = httptest.NewRequest(http.MethodGet, "/api/hello/world", nil)
	req.Header.Set("X-API-Key", "s3cret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/api/hello/world?code=s3cret", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestServer(t, api.WithRateLimit(0.001, 1))

	rr := doJSON(t, h, http.MethodGet, "/api/hello/world", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/api/hello/world", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	rr = doJSON(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func forwardedGet(h http.Handler, remote, forwarded string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/hello/world", nil)
	req.RemoteAddr = remote
	req.Header.Set("X-Forwarded-For", forwarded)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimit_IgnoresForwardedFor(t *testing.T) {
	h, _ := newTestServer(t, api.WithRateLimit(0.001, 1))

	accepted := 0
	for i := 0; i < 50; i++ {
		if forwardedGet(h, fmt.Sprintf("203.0.113.7:%d", 40000+i), fmt.Sprintf("10.0.0.%d", i)) == http.StatusOK {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestRateLimit_TrustedProxy(t *testing.T) {
	h, _ := newTestServer(t, api.WithRateLimit(0.001, 1), api.WithTrustProxy(true))

	assert.Equal(t, http.StatusOK, forwardedGet(h, "198.51.100.1:1000", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, forwardedGet(h, "198.51.100.1:1000", "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, forwardedGet(h, "198.51.100.1:1000", "10.0.0.1"))
}

func TestDebugMode(t *testing.T) {
	h, _ := newTestServer(t, api.WithDebug(true))
	rr := doJSON(t, h, http.MethodGet, "/api/hello/world", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hello! The Word document server is running.", decode(t, rr)["result"])
}

func TestMetrics(t *testing.T) {
	h, _ := newTestServer(t)
	rr := doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestCompact(t *testing.T) {
	tests := []struct {
		name string
		res  command.Result
		want string
	}{
		{"OK", command.Result{OK: true, Message: "done"}, "ok"},
		{"OKWithURL", command.Result{OK: true, URL: "https://x/y"}, "ok\nhttps://x/y"},
		{"NotFound", command.Result{NotFound: true}, "error: not found"},
		{"Invalid", command.Result{Invalid: true}, "error: invalid"},
		{"Error", command.Result{Message: "Error: boom"}, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, api.Compact(tt.res))
		})
	}
}
