package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-document/pkg/docstore"
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updatedAt   time.Time
}

// Backend is an in-memory implementation of the docstore.BlobStore interface.
// It enforces TTL like a remote backend, which makes it the usual test double.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
	}
}

// Kind returns "memory"
func (b *Backend) Kind() string {
	return "memory"
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*docstore.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
	}
	meta := obj.meta(objectKey)
	return &meta, nil
}

// Upload stores the content and metadata, replacing any existing object
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params docstore.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = &object{
		data:        data,
		contentType: contentType,
		metadata:    maps.Clone(params.Metadata),
		updatedAt:   time.Now().UTC(),
	}
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
	}

	delete(b.objects, objectKey)
	return nil
}

// List returns every object whose key starts with prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]docstore.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []docstore.ObjectMeta
	for key, obj := range b.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.meta(key))
		}
	}
	return out, nil
}

func (o *object) meta(key string) docstore.ObjectMeta {
	return docstore.ObjectMeta{
		Key:         key,
		Size:        int64(len(o.data)),
		ContentType: o.contentType,
		UpdatedAt:   o.updatedAt,
		Metadata:    maps.Clone(o.metadata),
	}
}
