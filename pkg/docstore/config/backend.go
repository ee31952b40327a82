package config

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/storage/azure"
	"github.com/tendant/simple-document/pkg/docstore/storage/fs"
	"github.com/tendant/simple-document/pkg/docstore/storage/memory"
	"github.com/tendant/simple-document/pkg/docstore/storage/postgres"
	"github.com/tendant/simple-document/pkg/docstore/storage/s3"
)

// Backend kinds, in selection order
const (
	BackendAzure    = "azure"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendFS       = "fs"
)

// BackendKind reports which backend the storage settings select. The first
// match wins: Azure connection string, Azure account name, then STORAGE_URL
// by scheme, then the local filesystem.
func (c *Config) BackendKind() (string, error) {
	s := c.Storage
	switch {
	case s.AzureConnectionString != "", s.AzureAccountName != "":
		return BackendAzure, nil
	case s.URL == "":
		return BackendFS, nil
	}

	scheme, _, ok := strings.Cut(s.URL, "://")
	if !ok {
		if s.URL == "memory" {
			return BackendMemory, nil
		}
		return "", fmt.Errorf("unsupported STORAGE_URL %q (use s3://, postgres://, memory:// or file://)", s.URL)
	}
	switch strings.ToLower(scheme) {
	case "s3":
		return BackendS3, nil
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "memory":
		return BackendMemory, nil
	case "file":
		return BackendFS, nil
	}
	return "", fmt.Errorf("unsupported STORAGE_URL scheme %q", scheme)
}

// Backends holds one BlobStore per container
type Backends struct {
	Kind      string
	Documents docstore.BlobStore
	Templates docstore.BlobStore
	close     func()
}

// Close releases connections held by the backends
func (b *Backends) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBackends connects the documents and templates containers
func (c *Config) OpenBackends(ctx context.Context) (*Backends, error) {
	kind, err := c.BackendKind()
	if err != nil {
		return nil, err
	}
	s := c.Storage
	b := &Backends{Kind: kind}

	switch kind {
	case BackendAzure:
		open := func(container string) (docstore.BlobStore, error) {
			return azure.New(ctx, azure.Config{
				ConnectionString: s.AzureConnectionString,
				AccountName:      s.AzureAccountName,
				AccountKey:       s.AzureAccountKey,
				Endpoint:         s.AzureEndpoint,
				Container:        container,
				EnsureExists:     true,
			})
		}
		if b.Documents, err = open(s.DocumentsContainer); err != nil {
			return nil, fmt.Errorf("azure %s: %w", s.DocumentsContainer, err)
		}
		if b.Templates, err = open(s.TemplatesContainer); err != nil {
			return nil, fmt.Errorf("azure %s: %w", s.TemplatesContainer, err)
		}

	case BackendS3:
		docs, templates, err := c.s3Configs()
		if err != nil {
			return nil, err
		}
		if b.Documents, err = s3.New(ctx, docs); err != nil {
			return nil, fmt.Errorf("s3 %s: %w", docs.Bucket, err)
		}
		if b.Templates, err = s3.New(ctx, templates); err != nil {
			return nil, fmt.Errorf("s3 %s: %w", templates.Bucket, err)
		}

	case BackendPostgres:
		docs, pool, err := postgres.NewWithPool(ctx, s.URL, s.DocumentsContainer)
		if err != nil {
			return nil, err
		}
		if err := docs.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		templates, err := postgres.New(pool, s.TemplatesContainer)
		if err != nil {
			pool.Close()
			return nil, err
		}
		b.Documents, b.Templates, b.close = docs, templates, pool.Close

	case BackendMemory:
		b.Documents, b.Templates = memory.New(), memory.New()

	case BackendFS:
		dir := s.LocalDir
		if s.URL != "" {
			dir = strings.TrimPrefix(s.URL, "file://")
		}
		if dir == "" {
			return nil, fmt.Errorf("filesystem path cannot be empty")
		}
		if b.Documents, err = fs.New(fs.Config{BaseDir: filepath.Join(dir, s.DocumentsContainer)}); err != nil {
			return nil, err
		}
		if b.Templates, err = fs.New(fs.Config{BaseDir: filepath.Join(dir, s.TemplatesContainer)}); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// s3Configs parses s3://bucket?region=..&endpoint=..&path_style=true.
// Without a bucket in the URL the container names are used as buckets;
// templates_bucket overrides the templates bucket.
func (c *Config) s3Configs() (docs, templates s3.Config, err error) {
	u, err := url.Parse(c.Storage.URL)
	if err != nil {
		return docs, templates, fmt.Errorf("parse STORAGE_URL: %w", err)
	}
	q := u.Query()

	base := s3.Config{
		Region:          firstNonEmpty(q.Get("region"), c.Storage.AWSRegion, "us-east-1"),
		Endpoint:        q.Get("endpoint"),
		AccessKeyID:     c.Storage.AWSAccessKeyID,
		SecretAccessKey: c.Storage.AWSSecretAccessKey,
	}
	if v := q.Get("path_style"); v != "" {
		if base.UsePathStyle, err = strconv.ParseBool(v); err != nil {
			return docs, templates, fmt.Errorf("invalid path_style %q: %w", v, err)
		}
	} else {
		base.UsePathStyle = base.Endpoint != ""
	}
	if v := q.Get("create_bucket"); v != "" {
		if base.CreateBucketIfNotExist, err = strconv.ParseBool(v); err != nil {
			return docs, templates, fmt.Errorf("invalid create_bucket %q: %w", v, err)
		}
	}

	docs, templates = base, base
	docs.Bucket = firstNonEmpty(u.Host, c.Storage.DocumentsContainer)
	templates.Bucket = firstNonEmpty(q.Get("templates_bucket"), c.Storage.TemplatesContainer)
	if docs.Bucket == templates.Bucket {
		return docs, templates, fmt.Errorf("documents and templates share bucket %q", docs.Bucket)
	}
	return docs, templates, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
