package docstore

import (
	"context"
	"io"
	"time"
)

// BlobStore is one container of a blob backend.
type BlobStore interface {
	// Kind names the backend ("memory", "fs", "s3", "azure", "postgres")
	Kind() string

	// Upload writes the object, replacing any existing object with the same key
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download returns the object content. Missing objects yield ErrNotFound.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes the object. Missing objects yield ErrNotFound.
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta returns size and user metadata for one object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// List returns metadata for every object whose key starts with prefix
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)
}

// URLSigner issues read-only capability URLs for objects.
// Backends with native signing (S3 presign, Azure SAS) implement it directly.
type URLSigner interface {
	SignURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// LocalStore is implemented by backends that keep objects on the local
// machine. Stores over a local backend do not enforce TTL.
type LocalStore interface {
	Local() bool
}

// ObjectMeta describes a stored object
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey   string
	ContentType string
	Metadata    map[string]string
}
