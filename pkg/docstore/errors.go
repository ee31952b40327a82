package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured indicates no remote backend credentials were found.
	// Configuration uses it to select the local fallback; it is never
	// returned from a Store operation.
	ErrNotConfigured = errors.New("remote storage not configured")

	// ErrNotFound indicates neither the exact key nor a case-insensitive match exists
	ErrNotFound = errors.New("blob not found")

	// ErrExpired indicates the blob outlived its TTL and has been deleted
	ErrExpired = errors.New("blob expired")

	// ErrDecode indicates stored bytes are not a valid document
	ErrDecode = errors.New("document could not be decoded")

	// ErrSigningUnavailable indicates no key is available to sign a capability URL
	ErrSigningUnavailable = errors.New("url signing unavailable")

	// ErrWriteFailure indicates the backend rejected a write
	ErrWriteFailure = errors.New("write failed")

	// ErrInvalidTTL indicates a negative TTL
	ErrInvalidTTL = errors.New("invalid ttl")

	// ErrInvalidKey indicates an empty or malformed blob key
	ErrInvalidKey = errors.New("invalid key")
)

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the blob is gone, either because it
// never existed or because it expired on read.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired)
}
