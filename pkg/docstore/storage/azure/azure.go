// Package azure stores documents in an Azure Blob Storage container.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/tendant/simple-document/pkg/docstore"
)

// Config holds configuration for Azure Blob Storage
type Config struct {
	// ConnectionString is a full connection string and takes precedence over the other credentials
	ConnectionString string
	// AccountName is the storage account name
	AccountName string
	// AccountKey is the account access key. Without it (and without a
	// connection string) DefaultAzureCredential is used and SAS URLs are unavailable.
	AccountKey string
	// Container is the blob container name
	Container string
	// Endpoint overrides the service URL, e.g. for Azurite
	Endpoint string
	// EnsureExists creates the container if it does not exist
	EnsureExists bool
}

// Backend is an Azure Blob Storage implementation of the docstore.BlobStore interface
type Backend struct {
	container *container.Client
	name      string
	canSign   bool
}

// New creates a new Azure storage backend
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Container == "" {
		return nil, errors.New("container is required")
	}
	if cfg.AccountName == "" && cfg.ConnectionString == "" {
		return nil, errors.New("storage account or connection string is required")
	}

	var (
		serviceClient *azblob.Client
		canSign       bool
		err           error
	)

	switch {
	case cfg.ConnectionString != "":
		serviceClient, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client from connection string: %w", err)
		}
		// SAS-only connection strings cannot sign further URLs
		canSign = strings.Contains(cfg.ConnectionString, "AccountKey=")
	case cfg.AccountKey != "":
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure shared key credential: %w", err)
		}
		serviceClient, err = azblob.NewClientWithSharedKeyCredential(serviceURL(cfg), cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		canSign = true
	default:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure default credential: %w", err)
		}
		serviceClient, err = azblob.NewClient(serviceURL(cfg), cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
	}

	b := &Backend{
		container: serviceClient.ServiceClient().NewContainerClient(cfg.Container),
		name:      cfg.Container,
		canSign:   canSign,
	}

	if cfg.EnsureExists {
		if err := b.ensureContainer(ctx); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func serviceURL(cfg Config) string {
	if cfg.Endpoint != "" {
		// Azurite path-style URLs carry the account name
		return fmt.Sprintf("%s/%s", strings.TrimRight(cfg.Endpoint, "/"), cfg.AccountName)
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
}

func (b *Backend) ensureContainer(ctx context.Context) error {
	_, err := b.container.Create(ctx, nil)
	if err == nil {
		return nil
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("failed to create container %s: %w", b.name, err)
}

// Kind returns "azure"
func (b *Backend) Kind() string {
	return "azure"
}

// CanSign reports whether SAS URLs can be generated with the configured credential
func (b *Backend) CanSign() bool {
	return b.canSign
}

func notFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound)
}

func fromAzureMetadata(in map[string]*string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != nil {
			out[strings.ToLower(k)] = *v
		}
	}
	return out
}

func toAzureMetadata(in map[string]string) map[string]*string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]*string, len(in))
	for k, v := range in {
		out[k] = to(v)
	}
	return out
}

func to[T any](v T) *T { return &v }

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// GetObjectMeta retrieves blob properties and metadata
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*docstore.ObjectMeta, error) {
	props, err := b.container.NewBlobClient(objectKey).GetProperties(ctx, nil)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
		}
		return nil, fmt.Errorf("failed to get blob properties: %w", err)
	}
	return &docstore.ObjectMeta{
		Key:         objectKey,
		Size:        deref(props.ContentLength),
		ContentType: deref(props.ContentType),
		UpdatedAt:   deref(props.LastModified),
		ETag:        string(deref(props.ETag)),
		Metadata:    fromAzureMetadata(props.Metadata),
	}, nil
}

// Upload uploads content as a block blob
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params docstore.UploadParams) error {
	opts := &blockblob.UploadStreamOptions{
		Metadata: toAzureMetadata(params.Metadata),
	}
	if params.ContentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to(params.ContentType)}
	}
	if _, err := b.container.NewBlockBlobClient(params.ObjectKey).UploadStream(ctx, reader, opts); err != nil {
		return fmt.Errorf("failed to upload blob: %w", err)
	}
	return nil
}

// Download streams a blob
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	resp, err := b.container.NewBlobClient(objectKey).DownloadStream(ctx, nil)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return resp.Body, nil
}

// Delete deletes a blob
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if _, err := b.container.NewBlobClient(objectKey).Delete(ctx, nil); err != nil {
		if notFound(err) {
			return fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// List pages through the container including blob metadata
func (b *Backend) List(ctx context.Context, prefix string) ([]docstore.ObjectMeta, error) {
	opts := &container.ListBlobsFlatOptions{
		Include: container.ListBlobsInclude{Metadata: true},
	}
	if prefix != "" {
		opts.Prefix = to(prefix)
	}

	var out []docstore.ObjectMeta
	pager := b.container.NewListBlobsFlatPager(opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			meta := docstore.ObjectMeta{
				Key:      deref(item.Name),
				Metadata: fromAzureMetadata(item.Metadata),
			}
			if p := item.Properties; p != nil {
				meta.Size = deref(p.ContentLength)
				meta.ContentType = deref(p.ContentType)
				meta.UpdatedAt = deref(p.LastModified)
				meta.ETag = string(deref(p.ETag))
			}
			out = append(out, meta)
		}
	}
	return out, nil
}

// SignURL returns a read-only SAS URL. It fails with
// docstore.ErrSigningUnavailable when the backend has no account key.
func (b *Backend) SignURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if !b.canSign {
		return "", fmt.Errorf("%w: azure backend has no account key", docstore.ErrSigningUnavailable)
	}
	now := time.Now().UTC()
	url, err := b.container.NewBlobClient(objectKey).GetSASURL(
		sas.BlobPermissions{Read: true},
		now.Add(expiry),
		&blob.GetSASURLOptions{StartTime: to(now.Add(-5 * time.Minute))},
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate SAS URL: %w", err)
	}
	return url, nil
}
