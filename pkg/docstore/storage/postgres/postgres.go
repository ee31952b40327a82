// Package postgres stores documents as rows of a PostgreSQL table. It is a
// remote backend: TTL is enforced, but it has no URL signer of its own.
package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-document/pkg/docstore"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Schema creates the blob table. Migrate runs it.
const Schema = `
CREATE SCHEMA IF NOT EXISTS docstore;

CREATE TABLE IF NOT EXISTS docstore.blob (
	container    VARCHAR(255) NOT NULL,
	object_key   VARCHAR(1024) NOT NULL,
	data         BYTEA NOT NULL,
	content_type VARCHAR(255) NOT NULL DEFAULT '',
	metadata     JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (container, object_key)
);`

// Backend implements docstore.BlobStore on one container's rows
type Backend struct {
	db        DBTX
	container string
}

// New creates a backend scoped to container
func New(db DBTX, container string) (*Backend, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if container == "" {
		return nil, errors.New("container is required")
	}
	return &Backend{db: db, container: container}, nil
}

// NewWithPool connects to connString and returns a backend scoped to container
func NewWithPool(ctx context.Context, connString, container string) (*Backend, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	b, err := New(pool, container)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return b, pool, nil
}

// Migrate creates the schema if it does not exist
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, Schema); err != nil {
		return b.handlePostgresError("migrate", err)
	}
	return nil
}

// Kind returns "postgres"
func (b *Backend) Kind() string {
	return "postgres"
}

// Error handling helper
func (b *Backend) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// GetObjectMeta retrieves metadata for a stored blob
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*docstore.ObjectMeta, error) {
	query := `
		SELECT object_key, octet_length(data), content_type, metadata, updated_at
		FROM docstore.blob WHERE container = $1 AND object_key = $2`

	meta, err := scanMeta(b.db.QueryRow(ctx, query, b.container, objectKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
		}
		return nil, b.handlePostgresError("get object meta", err)
	}
	return meta, nil
}

func scanMeta(row pgx.Row) (*docstore.ObjectMeta, error) {
	var meta docstore.ObjectMeta
	if err := row.Scan(&meta.Key, &meta.Size, &meta.ContentType, &meta.Metadata, &meta.UpdatedAt); err != nil {
		return nil, err
	}
	if meta.Metadata == nil {
		meta.Metadata = map[string]string{}
	}
	meta.UpdatedAt = meta.UpdatedAt.UTC()
	return &meta, nil
}

// Upload inserts or replaces a blob
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params docstore.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	query := `
		INSERT INTO docstore.blob (container, object_key, data, content_type, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (container, object_key) DO UPDATE SET
			data = EXCLUDED.data, content_type = EXCLUDED.content_type,
			metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`

	_, err = b.db.Exec(ctx, query, b.container, params.ObjectKey, data, params.ContentType, metadata, time.Now().UTC())
	if err != nil {
		return b.handlePostgresError("upload", err)
	}
	return nil
}

// Download returns the blob content
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	var data []byte
	err := b.db.QueryRow(ctx,
		`SELECT data FROM docstore.blob WHERE container = $1 AND object_key = $2`,
		b.container, objectKey).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
		}
		return nil, b.handlePostgresError("download", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes a blob
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	tag, err := b.db.Exec(ctx,
		`DELETE FROM docstore.blob WHERE container = $1 AND object_key = $2`,
		b.container, objectKey)
	if err != nil {
		return b.handlePostgresError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
	}
	return nil
}

// List returns every blob whose key starts with prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]docstore.ObjectMeta, error) {
	query := `
		SELECT object_key, octet_length(data), content_type, metadata, updated_at
		FROM docstore.blob
		WHERE container = $1 AND starts_with(object_key, $2)
		ORDER BY object_key`

	rows, err := b.db.Query(ctx, query, b.container, prefix)
	if err != nil {
		return nil, b.handlePostgresError("list", err)
	}
	defer rows.Close()

	var out []docstore.ObjectMeta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, b.handlePostgresError("list", err)
		}
		out = append(out, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, b.handlePostgresError("list", err)
	}
	return out, nil
}
