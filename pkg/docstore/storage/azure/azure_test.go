package azure

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore"
)

// Azurite's published development account
const azuriteConnectionString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{AccountName: "acct"})
	assert.EqualError(t, err, "container is required")

	_, err = New(context.Background(), Config{Container: "word-documents"})
	assert.EqualError(t, err, "storage account or connection string is required")
}

func TestServiceURL(t *testing.T) {
	assert.Equal(t, "https://acct.blob.core.windows.net", serviceURL(Config{AccountName: "acct"}))
	assert.Equal(t, "http://127.0.0.1:10000/acct", serviceURL(Config{AccountName: "acct", Endpoint: "http://127.0.0.1:10000/"}))
}

func TestSignURL_WithAccountKey(t *testing.T) {
	b, err := New(context.Background(), Config{ConnectionString: azuriteConnectionString, Container: "word-documents"})
	require.NoError(t, err)

	assert.Equal(t, "azure", b.Kind())
	assert.True(t, b.CanSign())

	url, err := b.SignURL(context.Background(), "reports/q1.docx", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://127.0.0.1:10000/devstoreaccount1/word-documents/"), url)
	assert.Contains(t, url, "q1.docx?")
	assert.Contains(t, url, "sig=")
	assert.Contains(t, url, "sp=r")
}

func TestSignURL_WithoutAccountKey(t *testing.T) {
	b, err := New(context.Background(), Config{
		ConnectionString: "BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;SharedAccessSignature=sv=2021-08-06&sig=abc",
		Container:        "word-documents",
	})
	require.NoError(t, err)
	assert.False(t, b.CanSign())

	_, err = b.SignURL(context.Background(), "reports/q1.docx", time.Hour)
	assert.ErrorIs(t, err, docstore.ErrSigningUnavailable)
}

func TestMetadataConversion(t *testing.T) {
	in := map[string]string{docstore.MetaExpiresAt: "2024-01-01T00:00:00Z"}
	out := fromAzureMetadata(map[string]*string{"Expires_At": toAzureMetadata(in)[docstore.MetaExpiresAt], "skip": nil})
	assert.Equal(t, map[string]string{"expires_at": "2024-01-01T00:00:00Z"}, out)
	assert.Nil(t, toAzureMetadata(nil))
}
