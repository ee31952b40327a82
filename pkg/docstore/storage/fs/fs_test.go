package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore"
)

func TestNew_RequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base directory is required")
}

func TestFSBackend(t *testing.T) {
	baseDir := t.TempDir()
	backend, err := New(Config{BaseDir: baseDir})
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, "fs", backend.Kind())
	assert.True(t, backend.Local())

	t.Run("UploadAndStat", func(t *testing.T) {
		err := backend.Upload(ctx, strings.NewReader("hello"), docstore.UploadParams{
			ObjectKey:   "general/letter.docx",
			ContentType: docstore.DocxContentType,
			Metadata:    map[string]string{"author": "Ada"},
		})
		require.NoError(t, err)

		meta, err := backend.GetObjectMeta(ctx, "general/letter.docx")
		require.NoError(t, err)
		assert.Equal(t, int64(5), meta.Size)
		assert.Equal(t, docstore.DocxContentType, meta.ContentType)
		assert.Equal(t, "Ada", meta.Metadata["author"])

		_, err = os.Stat(filepath.Join(baseDir, ".meta", "general", "letter.docx.json"))
		assert.NoError(t, err)
	})

	t.Run("Download", func(t *testing.T) {
		rc, err := backend.Download(ctx, "general/letter.docx")
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("ListSkipsMetadata", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, strings.NewReader("x"), docstore.UploadParams{ObjectKey: "Report.docx"}))

		all, err := backend.List(ctx, "")
		require.NoError(t, err)
		keys := make([]string, 0, len(all))
		for _, m := range all {
			keys = append(keys, m.Key)
		}
		assert.ElementsMatch(t, []string{"general/letter.docx", "Report.docx"}, keys)

		general, err := backend.List(ctx, "general/")
		require.NoError(t, err)
		assert.Len(t, general, 1)
	})

	t.Run("RejectsEscapingKeys", func(t *testing.T) {
		for _, key := range []string{"../outside.docx", "/etc/passwd", ".meta/x.json", ""} {
			err := backend.Upload(ctx, strings.NewReader("x"), docstore.UploadParams{ObjectKey: key})
			assert.ErrorIs(t, err, docstore.ErrInvalidKey, key)
		}
	})

	t.Run("DeleteCleansDirectories", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, "general/letter.docx"))

		_, err := os.Stat(filepath.Join(baseDir, "general"))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(baseDir, ".meta", "general"))
		assert.True(t, os.IsNotExist(err))

		_, err = backend.GetObjectMeta(ctx, "general/letter.docx")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, "general/letter.docx"), docstore.ErrNotFound)
	})
}
