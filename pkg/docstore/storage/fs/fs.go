package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tendant/simple-document/pkg/docstore"
)

// metaDir holds one JSON sidecar per object with its user metadata
const metaDir = ".meta"

// Backend is a filesystem implementation of the docstore.BlobStore interface.
// It is the local fallback used when no remote storage is configured, so it
// reports itself as local and stores never expire its objects.
type Backend struct {
	mu      sync.RWMutex
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

type sidecar struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata"`
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir: filepath.Clean(config.BaseDir),
	}, nil
}

// Kind returns "fs"
func (b *Backend) Kind() string {
	return "fs"
}

// Local reports true: objects stay on this machine
func (b *Backend) Local() bool {
	return true
}

// paths maps an object key to its data file and sidecar file
func (b *Backend) paths(objectKey string) (string, string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if objectKey == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) ||
		clean == metaDir || strings.HasPrefix(clean, metaDir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q", docstore.ErrInvalidKey, objectKey)
	}
	return filepath.Join(b.baseDir, clean), filepath.Join(b.baseDir, metaDir, clean+".json"), nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*docstore.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.stat(objectKey)
}

func (b *Backend) stat(objectKey string) (*docstore.ObjectMeta, error) {
	filePath, metaPath, err := b.paths(objectKey)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
	}

	meta := &docstore.ObjectMeta{
		Key:       objectKey,
		Size:      info.Size(),
		UpdatedAt: info.ModTime().UTC(),
		Metadata:  map[string]string{},
	}

	if raw, err := os.ReadFile(metaPath); err == nil {
		var sc sidecar
		if err := json.Unmarshal(raw, &sc); err != nil {
			return nil, fmt.Errorf("failed to read metadata for %s: %w", objectKey, err)
		}
		meta.ContentType = sc.ContentType
		if sc.Metadata != nil {
			meta.Metadata = sc.Metadata
		}
	}

	// Detect content type when no sidecar recorded one
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
		if file, err := os.Open(filePath); err == nil {
			defer file.Close()
			buffer := make([]byte, 512)
			if n, err := file.Read(buffer); err == nil {
				meta.ContentType = http.DetectContentType(buffer[:n])
			}
		}
	}

	return meta, nil
}

// Upload writes content and its metadata sidecar
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params docstore.UploadParams) error {
	filePath, metaPath, err := b.paths(params.ObjectKey)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Create directory structure if it doesn't exist
	for _, dir := range []string{filepath.Dir(filePath), filepath.Dir(metaPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write to a temp file first so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	raw, err := json.Marshal(sidecar{ContentType: params.ContentType, Metadata: params.Metadata})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, raw, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Download downloads content directly from the filesystem
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	filePath, _, err := b.paths(objectKey)
	if err != nil {
		return nil, err
	}

	// Check if file exists and open it
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete deletes content and its sidecar from the filesystem
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath, metaPath, err := b.paths(objectKey)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, objectKey)
	}

	// Delete file
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}

	// Clean up empty directories
	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	b.cleanupEmptyDirectories(filepath.Dir(metaPath))

	return nil
}

// List walks the base directory and returns every object under prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]docstore.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []docstore.ObjectMeta
	err := filepath.WalkDir(b.baseDir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p == filepath.Join(b.baseDir, metaDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := b.stat(key)
		if err != nil {
			return err
		}
		out = append(out, *meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return out, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	// Don't remove the base directory or the metadata root
	if dir == b.baseDir || dir == filepath.Join(b.baseDir, metaDir) {
		return
	}

	// Check if directory is empty
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		// Remove empty directory
		if os.Remove(dir) == nil {
			// Recursively clean parent directory
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
