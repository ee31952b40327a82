package postgres_test

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/storage/postgres"
)

// newTestBackend connects to TEST_DATABASE_URL and returns a backend on a
// fresh container. The test is skipped when no database is configured.
func newTestBackend(t *testing.T) *postgres.Backend {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx), "Failed to ping test database")

	backend, err := postgres.New(pool, "test-"+strings.ToLower(t.Name()))
	require.NoError(t, err)
	require.NoError(t, backend.Migrate(ctx))

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM docstore.blob WHERE container LIKE 'test-%'`)
	})
	return backend
}

func TestNew_Validation(t *testing.T) {
	_, err := postgres.New(nil, "docs")
	assert.Error(t, err)
}

func TestPostgresBackend(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, strings.NewReader("v1"), docstore.UploadParams{
		ObjectKey:   "general/a.docx",
		ContentType: docstore.DocxContentType,
		Metadata:    map[string]string{docstore.MetaTTLHours: "2"},
	}))
	require.NoError(t, backend.Upload(ctx, strings.NewReader("version2"), docstore.UploadParams{
		ObjectKey: "general/a.docx",
		Metadata:  map[string]string{docstore.MetaTTLHours: "3"},
	}))
	require.NoError(t, backend.Upload(ctx, strings.NewReader("b"), docstore.UploadParams{ObjectKey: "b.docx"}))

	meta, err := backend.GetObjectMeta(ctx, "general/a.docx")
	require.NoError(t, err)
	assert.Equal(t, int64(8), meta.Size)
	assert.Equal(t, "3", meta.Metadata[docstore.MetaTTLHours])

	rc, err := backend.Download(ctx, "general/a.docx")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "version2", string(data))

	listed, err := backend.List(ctx, "general/")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "general/a.docx", listed[0].Key)

	require.NoError(t, backend.Delete(ctx, "b.docx"))
	assert.ErrorIs(t, backend.Delete(ctx, "b.docx"), docstore.ErrNotFound)
	_, err = backend.Download(ctx, "b.docx")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}
