package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Store is a TTL-aware view over one BlobStore container.
type Store struct {
	blobs      BlobStore
	container  string
	defaultTTL int
	remote     bool
	issuer     *Issuer
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithContainer names the container for logs, metrics and diagnostics
func WithContainer(name string) Option {
	return func(s *Store) {
		s.container = name
	}
}

// WithDefaultTTL sets the TTL applied when Save gets no WithTTL option
func WithDefaultTTL(hours int) Option {
	return func(s *Store) {
		s.defaultTTL = hours
	}
}

// WithURLSigner sets the signer used when the backend cannot sign URLs itself
func WithURLSigner(signer URLSigner) Option {
	return func(s *Store) {
		s.issuer.fallback = signer
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store over blobs. Backends implementing LocalStore
// disable TTL enforcement.
func NewStore(blobs BlobStore, opts ...Option) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	s := &Store{
		blobs:      blobs,
		container:  blobs.Kind(),
		defaultTTL: DefaultTTLHours,
		remote:     true,
		issuer:     NewIssuer(blobs, nil),
		logger:     slog.Default(),
		now:        time.Now,
	}
	if local, ok := blobs.(LocalStore); ok && local.Local() {
		s.remote = false
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultTTL < 0 {
		return nil, fmt.Errorf("%w: default ttl %d", ErrInvalidTTL, s.defaultTTL)
	}
	s.metrics = NewMetrics(s.container)
	return s, nil
}

// RemoteEnabled reports whether the store is backed by a remote service.
// When false, TTL is not enforced.
func (s *Store) RemoteEnabled() bool {
	return s.remote
}

// Container returns the container name
func (s *Store) Container() string {
	return s.container
}

// DefaultTTL returns the TTL in hours applied by Save
func (s *Store) DefaultTTL() int {
	return s.defaultTTL
}

type saveOptions struct {
	ttl         int
	noExpiry    bool
	contentType string
	metadata    map[string]string
}

// SaveOption configures a single Save call
type SaveOption func(*saveOptions)

// WithTTL overrides the store default TTL
func WithTTL(hours int) SaveOption {
	return func(o *saveOptions) {
		o.ttl = hours
	}
}

// WithoutExpiry stores the blob without TTL metadata
func WithoutExpiry() SaveOption {
	return func(o *saveOptions) {
		o.noExpiry = true
	}
}

// WithContentType overrides the default document content type
func WithContentType(contentType string) SaveOption {
	return func(o *saveOptions) {
		o.contentType = contentType
	}
}

// WithMetadata attaches extra string metadata
func WithMetadata(meta map[string]string) SaveOption {
	return func(o *saveOptions) {
		o.metadata = meta
	}
}

// Save writes data under key, replacing any existing blob.
func (s *Store) Save(ctx context.Context, key string, data []byte, opts ...SaveOption) (res *SaveResult, err error) {
	defer func() { s.metrics.observe("save", err) }()

	if key == "" {
		return nil, ErrInvalidKey
	}
	o := saveOptions{ttl: s.defaultTTL, contentType: DocxContentType}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTTL, o.ttl)
	}

	now := s.now().UTC()
	meta := make(map[string]string, len(o.metadata)+3)
	maps.Copy(meta, o.metadata)
	res = &SaveResult{Key: key, Size: int64(len(data)), CreatedAt: now, Remote: s.remote}
	if !o.noExpiry {
		expires := now.Add(time.Duration(o.ttl) * time.Hour)
		meta[MetaCreatedAt] = formatTime(now)
		meta[MetaExpiresAt] = formatTime(expires)
		meta[MetaTTLHours] = strconv.Itoa(o.ttl)
		res.ExpiresAt = expires
		res.TTLHours = o.ttl
	}

	err = s.blobs.Upload(ctx, bytes.NewReader(data), UploadParams{
		ObjectKey:   key,
		ContentType: o.contentType,
		Metadata:    meta,
	})
	if err != nil {
		return nil, &StorageError{Backend: s.blobs.Kind(), Key: key, Op: "save", Err: errors.Join(ErrWriteFailure, err)}
	}
	s.metrics.written(len(data))
	s.logger.Debug("blob saved", "container", s.container, "key", key, "size", len(data), "ttl_hours", res.TTLHours)
	return res, nil
}

// Get returns the blob stored under key. When no exact match exists the key
// is matched case-insensitively; if several keys match, the lexicographically
// smallest wins. An expired blob is deleted and ErrExpired is returned.
func (s *Store) Get(ctx context.Context, key string) (blob *Blob, err error) {
	defer func() { s.metrics.observe("get", err) }()

	meta, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.expireOnRead(ctx, meta); err != nil {
		return nil, err
	}

	rc, err := s.blobs.Download(ctx, meta.Key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, &StorageError{Backend: s.blobs.Kind(), Key: meta.Key, Op: "get", Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &StorageError{Backend: s.blobs.Kind(), Key: meta.Key, Op: "get", Err: err}
	}

	created, expires, ttl := lifecycle(meta.Metadata)
	return &Blob{
		Key:         meta.Key,
		Data:        data,
		Size:        int64(len(data)),
		ContentType: meta.ContentType,
		CreatedAt:   created,
		ExpiresAt:   expires,
		TTLHours:    ttl,
		Metadata:    meta.Metadata,
	}, nil
}

// Exists reports whether key resolves to a live blob. Like Get it deletes
// the blob when it has expired.
func (s *Store) Exists(ctx context.Context, key string) (string, bool, error) {
	meta, err := s.resolve(ctx, key)
	if err == nil {
		err = s.expireOnRead(ctx, meta)
	}
	switch {
	case err == nil:
		return meta.Key, true, nil
	case IsNotFound(err):
		return "", false, nil
	default:
		return "", false, err
	}
}

// List returns every blob in the container with its computed expiry state.
// It does not delete anything. The first backend error aborts the listing.
func (s *Store) List(ctx context.Context) (entries []Entry, err error) {
	defer func() { s.metrics.observe("list", err) }()

	objects, err := s.blobs.List(ctx, "")
	if err != nil {
		return nil, &StorageError{Backend: s.blobs.Kind(), Op: "list", Err: err}
	}
	now := s.now()
	entries = make([]Entry, 0, len(objects))
	for _, obj := range objects {
		created, expires, _ := lifecycle(obj.Metadata)
		if created.IsZero() {
			created = obj.UpdatedAt
		}
		entries = append(entries, Entry{
			Key:       obj.Key,
			Size:      obj.Size,
			CreatedAt: created,
			ExpiresAt: expires,
			Expired:   s.expired(expires, now),
			Metadata:  obj.Metadata,
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
	return entries, nil
}

// Cleanup deletes every expired blob. Per-item delete failures do not stop
// the scan; they are joined into the returned error and listed in Failed.
func (s *Store) Cleanup(ctx context.Context) (res *CleanupResult, err error) {
	defer func() { s.metrics.observe("cleanup", err) }()

	res = &CleanupResult{}
	if !s.remote {
		return res, nil
	}
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, e := range entries {
		if !e.Expired {
			continue
		}
		if err := s.blobs.Delete(ctx, e.Key); err != nil && !errors.Is(err, ErrNotFound) {
			res.Failed = append(res.Failed, e.Key)
			errs = append(errs, &StorageError{Backend: s.blobs.Kind(), Key: e.Key, Op: "cleanup", Err: err})
			continue
		}
		res.Deleted++
	}
	s.metrics.expired("cleanup", res.Deleted)
	if res.Deleted > 0 || len(errs) > 0 {
		s.logger.Info("expired blobs cleaned up", "container", s.container, "deleted", res.Deleted, "failed", len(res.Failed))
	}
	return res, errors.Join(errs...)
}

// Delete removes the blob stored under the exact key
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer func() { s.metrics.observe("delete", err) }()

	if err := s.blobs.Delete(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return &StorageError{Backend: s.blobs.Kind(), Key: key, Op: "delete", Err: err}
	}
	return nil
}

// IssueURL returns a read-only URL for key valid for ttlHours. The blob
// must exist; the URL's lifetime is independent of the blob's TTL.
func (s *Store) IssueURL(ctx context.Context, key string, ttlHours int) (url string, err error) {
	defer func() { s.metrics.observe("issue_url", err) }()

	if ttlHours <= 0 {
		return "", fmt.Errorf("%w: url expiry %d hours", ErrInvalidTTL, ttlHours)
	}
	meta, err := s.resolve(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.expireOnRead(ctx, meta); err != nil {
		return "", err
	}
	return s.issuer.Sign(ctx, meta.Key, time.Duration(ttlHours)*time.Hour)
}

// SigningAvailable reports whether IssueURL can produce URLs at all
func (s *Store) SigningAvailable() bool {
	return s.issuer.Available()
}

// Info returns a diagnostic snapshot of the store
func (s *Store) Info(ctx context.Context) (*StorageInfo, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	info := &StorageInfo{
		Backend:          s.blobs.Kind(),
		Container:        s.container,
		Remote:           s.remote,
		DefaultTTLHours:  s.defaultTTL,
		SigningAvailable: s.SigningAvailable(),
		BlobCount:        len(entries),
		Keys:             make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		info.TotalBytes += e.Size
		info.Keys = append(info.Keys, e.Key)
	}
	return info, nil
}

// resolve finds the metadata for key, falling back to a case-insensitive scan
func (s *Store) resolve(ctx context.Context, key string) (*ObjectMeta, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	meta, err := s.blobs.GetObjectMeta(ctx, key)
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, &StorageError{Backend: s.blobs.Kind(), Key: key, Op: "stat", Err: err}
	}

	objects, err := s.blobs.List(ctx, "")
	if err != nil {
		return nil, &StorageError{Backend: s.blobs.Kind(), Key: key, Op: "list", Err: err}
	}
	var match *ObjectMeta
	for i := range objects {
		if !strings.EqualFold(objects[i].Key, key) {
			continue
		}
		if match == nil || objects[i].Key < match.Key {
			match = &objects[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.metrics.caseFallback()
	s.logger.Debug("blob resolved case-insensitively", "container", s.container, "key", key, "resolved", match.Key)
	return match, nil
}

// expireOnRead deletes meta's blob and returns ErrExpired when its TTL elapsed
func (s *Store) expireOnRead(ctx context.Context, meta *ObjectMeta) error {
	_, expires, _ := lifecycle(meta.Metadata)
	if !s.expired(expires, s.now()) {
		return nil
	}
	if err := s.blobs.Delete(ctx, meta.Key); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("failed to delete expired blob", "container", s.container, "key", meta.Key, "error", err)
	} else {
		s.metrics.expired("read", 1)
	}
	return fmt.Errorf("%w: %s", ErrExpired, meta.Key)
}

func (s *Store) expired(expires, now time.Time) bool {
	return s.remote && !expires.IsZero() && now.After(expires)
}
