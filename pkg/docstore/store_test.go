package docstore_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/storage/fs"
	"github.com/tendant/simple-document/pkg/docstore/storage/memory"
)

// clock is a settable time source
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newStore(t *testing.T, c *clock, opts ...docstore.Option) (*docstore.Store, *memory.Backend) {
	t.Helper()
	backend := memory.New()
	opts = append([]docstore.Option{docstore.WithContainer("word-documents"), docstore.WithClock(c.now)}, opts...)
	store, err := docstore.NewStore(backend, opts...)
	require.NoError(t, err)
	return store, backend
}

// staticSigner signs by appending a fixed query
type staticSigner struct{ err error }

func (s staticSigner) SignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("https://signed.example/%s?ttl=%s", key, expiry), nil
}

// failingDelete rejects deletes of selected keys
type failingDelete struct {
	*memory.Backend
	fail map[string]bool
}

func (f *failingDelete) Delete(ctx context.Context, key string) error {
	if f.fail[key] {
		return errors.New("permission denied")
	}
	return f.Backend.Delete(ctx, key)
}

func TestNewStore_Validation(t *testing.T) {
	_, err := docstore.NewStore(nil)
	assert.Error(t, err)

	_, err = docstore.NewStore(memory.New(), docstore.WithDefaultTTL(-1))
	assert.ErrorIs(t, err, docstore.ErrInvalidTTL)
}

func TestSaveGet_RoundTrip(t *testing.T) {
	c := newClock()
	store, _ := newStore(t, c)
	ctx := context.Background()

	res, err := store.Save(ctx, "report.docx", []byte("payload"), docstore.WithMetadata(map[string]string{"owner": "ops"}))
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Size)
	assert.Equal(t, 24, res.TTLHours)
	assert.Equal(t, c.t, res.CreatedAt)
	assert.Equal(t, c.t.Add(24*time.Hour), res.ExpiresAt)
	assert.True(t, res.Remote)

	blob, err := store.Get(ctx, "report.docx")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), blob.Data)
	assert.Equal(t, "report.docx", blob.Key)
	assert.Equal(t, 24, blob.TTLHours)
	assert.Equal(t, c.t, blob.CreatedAt)
	assert.Equal(t, c.t.Add(24*time.Hour), blob.ExpiresAt)
	assert.Equal(t, "ops", blob.Metadata["owner"])
	assert.Equal(t, docstore.DocxContentType, blob.ContentType)
}

func TestSave_Validation(t *testing.T) {
	store, _ := newStore(t, newClock())
	ctx := context.Background()

	_, err := store.Save(ctx, "", []byte("x"))
	assert.ErrorIs(t, err, docstore.ErrInvalidKey)

	_, err = store.Save(ctx, "a.docx", []byte("x"), docstore.WithTTL(-2))
	assert.ErrorIs(t, err, docstore.ErrInvalidTTL)
}

func TestSave_Overwrite(t *testing.T) {
	store, _ := newStore(t, newClock())
	ctx := context.Background()

	_, err := store.Save(ctx, "a.docx", []byte("one"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "a.docx", []byte("two"))
	require.NoError(t, err)

	blob, err := store.Get(ctx, "a.docx")
	require.NoError(t, err)
	assert.Equal(t, "two", string(blob.Data))
}

func TestGet_ExpiredIsDeleted(t *testing.T) {
	c := newClock()
	store, backend := newStore(t, c)
	ctx := context.Background()

	_, err := store.Save(ctx, "short.docx", []byte("x"), docstore.WithTTL(0))
	require.NoError(t, err)

	// expires_at == now is not yet expired
	_, err = store.Get(ctx, "short.docx")
	require.NoError(t, err)

	c.advance(time.Second)
	_, err = store.Get(ctx, "short.docx")
	assert.ErrorIs(t, err, docstore.ErrExpired)
	assert.True(t, docstore.IsNotFound(err))

	_, err = backend.GetObjectMeta(ctx, "short.docx")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = store.Get(ctx, "short.docx")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestGet_CaseInsensitiveRecovery(t *testing.T) {
	store, _ := newStore(t, newClock())
	ctx := context.Background()

	_, err := store.Save(ctx, "Report.docx", []byte("upper"))
	require.NoError(t, err)

	blob, err := store.Get(ctx, "report.DOCX")
	require.NoError(t, err)
	assert.Equal(t, "Report.docx", blob.Key)
	assert.Equal(t, "upper", string(blob.Data))

	key, ok, err := store.Exists(ctx, "REPORT.docx")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Report.docx", key)

	_, ok, err = store.Exists(ctx, "missing.docx")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "missing.docx")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestGet_CaseInsensitiveTieBreak(t *testing.T) {
	store, _ := newStore(t, newClock())
	ctx := context.Background()

	for _, key := range []string{"report.Docx", "REPORT.docx", "Report.docx"} {
		_, err := store.Save(ctx, key, []byte(key))
		require.NoError(t, err)
	}

	blob, err := store.Get(ctx, "rePort.docx")
	require.NoError(t, err)
	assert.Equal(t, "REPORT.docx", blob.Key)
}

func TestList(t *testing.T) {
	c := newClock()
	store, _ := newStore(t, c)
	ctx := context.Background()

	_, err := store.Save(ctx, "b.docx", []byte("bb"), docstore.WithTTL(1))
	require.NoError(t, err)
	_, err = store.Save(ctx, "a.docx", []byte("a"), docstore.WithTTL(48))
	require.NoError(t, err)
	_, err = store.Save(ctx, "forever.docx", []byte("f"), docstore.WithoutExpiry())
	require.NoError(t, err)

	c.advance(2 * time.Hour)
	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "a.docx", entries[0].Key)
	assert.False(t, entries[0].Expired)
	assert.Equal(t, "b.docx", entries[1].Key)
	assert.True(t, entries[1].Expired)
	assert.Equal(t, int64(2), entries[1].Size)
	assert.Equal(t, "forever.docx", entries[2].Key)
	assert.False(t, entries[2].Expired)
	assert.True(t, entries[2].ExpiresAt.IsZero())

	// List never deletes
	entries, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCleanup(t *testing.T) {
	c := newClock()
	store, _ := newStore(t, c)
	ctx := context.Background()

	for i := range 3 {
		_, err := store.Save(ctx, fmt.Sprintf("old-%d.docx", i), []byte("x"), docstore.WithTTL(1))
		require.NoError(t, err)
	}
	_, err := store.Save(ctx, "fresh.docx", []byte("x"), docstore.WithTTL(24))
	require.NoError(t, err)

	c.advance(90 * time.Minute)
	res, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Deleted)
	assert.Empty(t, res.Failed)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh.docx", entries[0].Key)

	res, err = store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)
}

func TestCleanup_ContinuesPastFailures(t *testing.T) {
	c := newClock()
	backend := &failingDelete{Backend: memory.New(), fail: map[string]bool{"b.docx": true}}
	store, err := docstore.NewStore(backend, docstore.WithClock(c.now))
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"a.docx", "b.docx", "c.docx"} {
		_, err := store.Save(ctx, key, []byte("x"), docstore.WithTTL(1))
		require.NoError(t, err)
	}
	c.advance(2 * time.Hour)

	res, err := store.Cleanup(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	var se *docstore.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "b.docx", se.Key)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, []string{"b.docx"}, res.Failed)
}

func TestLocalFallback_NeverExpires(t *testing.T) {
	c := newClock()
	backend, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	store, err := docstore.NewStore(backend, docstore.WithClock(c.now))
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, store.RemoteEnabled())

	res, err := store.Save(ctx, "local.docx", []byte("x"), docstore.WithTTL(0))
	require.NoError(t, err)
	assert.False(t, res.Remote)

	c.advance(72 * time.Hour)
	_, err = store.Get(ctx, "local.docx")
	require.NoError(t, err)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Expired)

	cleaned, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned.Deleted)
}

func TestIssueURL(t *testing.T) {
	ctx := context.Background()

	t.Run("FailsClosedWithoutSigner", func(t *testing.T) {
		store, _ := newStore(t, newClock())
		_, err := store.Save(ctx, "a.docx", []byte("x"))
		require.NoError(t, err)

		assert.False(t, store.SigningAvailable())
		url, err := store.IssueURL(ctx, "a.docx", 1)
		assert.ErrorIs(t, err, docstore.ErrSigningUnavailable)
		assert.Empty(t, url)
	})

	t.Run("SignsResolvedKey", func(t *testing.T) {
		store, _ := newStore(t, newClock(), docstore.WithURLSigner(staticSigner{}))
		_, err := store.Save(ctx, "Report.docx", []byte("x"))
		require.NoError(t, err)

		url, err := store.IssueURL(ctx, "report.docx", 2)
		require.NoError(t, err)
		assert.Equal(t, "https://signed.example/Report.docx?ttl=2h0m0s", url)
	})

	t.Run("MissingBlob", func(t *testing.T) {
		store, _ := newStore(t, newClock(), docstore.WithURLSigner(staticSigner{}))
		_, err := store.IssueURL(ctx, "nope.docx", 1)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("ExpiredBlob", func(t *testing.T) {
		c := newClock()
		store, _ := newStore(t, c, docstore.WithURLSigner(staticSigner{}))
		_, err := store.Save(ctx, "a.docx", []byte("x"), docstore.WithTTL(1))
		require.NoError(t, err)
		c.advance(2 * time.Hour)

		_, err = store.IssueURL(ctx, "a.docx", 1)
		assert.ErrorIs(t, err, docstore.ErrExpired)
	})

	t.Run("InvalidExpiry", func(t *testing.T) {
		store, _ := newStore(t, newClock(), docstore.WithURLSigner(staticSigner{}))
		_, err := store.IssueURL(ctx, "a.docx", 0)
		assert.ErrorIs(t, err, docstore.ErrInvalidTTL)
	})

	t.Run("SignerFailureIsSigningUnavailable", func(t *testing.T) {
		store, _ := newStore(t, newClock(), docstore.WithURLSigner(staticSigner{err: errors.New("kms down")}))
		_, err := store.Save(ctx, "a.docx", []byte("x"))
		require.NoError(t, err)

		_, err = store.IssueURL(ctx, "a.docx", 1)
		assert.ErrorIs(t, err, docstore.ErrSigningUnavailable)
	})
}

func TestDelete(t *testing.T) {
	store, _ := newStore(t, newClock())
	ctx := context.Background()

	_, err := store.Save(ctx, "a.docx", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "a.docx"))
	assert.ErrorIs(t, store.Delete(ctx, "a.docx"), docstore.ErrNotFound)
}

func TestInfo(t *testing.T) {
	store, _ := newStore(t, newClock(), docstore.WithDefaultTTL(6))
	ctx := context.Background()

	for _, key := range []string{"b.docx", "a.docx"} {
		_, err := store.Save(ctx, key, []byte(strings.Repeat("x", 10)))
		require.NoError(t, err)
	}

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", info.Backend)
	assert.Equal(t, "word-documents", info.Container)
	assert.True(t, info.Remote)
	assert.Equal(t, 6, info.DefaultTTLHours)
	assert.False(t, info.SigningAvailable)
	assert.Equal(t, 2, info.BlobCount)
	assert.Equal(t, int64(20), info.TotalBytes)
	assert.Equal(t, []string{"a.docx", "b.docx"}, info.Keys)
}

func TestLegacyNaiveTimestamps(t *testing.T) {
	c := newClock()
	store, backend := newStore(t, c)
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, strings.NewReader("x"), docstore.UploadParams{
		ObjectKey: "legacy.docx",
		Metadata: map[string]string{
			"Created_At": "2024-03-01T10:00:00.123456",
			"Expires_At": "2024-03-01T11:00:00.123456",
			"TTL_Hours":  "1",
		},
	}))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Expired)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 123456000, time.UTC), entries[0].ExpiresAt)
}
