package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Issuer produces capability URLs for a BlobStore. It prefers the backend's
// own signer and falls back to a configured URLSigner. It never returns an
// unsigned URL.
type Issuer struct {
	blobs    BlobStore
	fallback URLSigner
}

// NewIssuer creates an Issuer. fallback may be nil.
func NewIssuer(blobs BlobStore, fallback URLSigner) *Issuer {
	return &Issuer{blobs: blobs, fallback: fallback}
}

// Available reports whether any signer is configured
func (i *Issuer) Available() bool {
	if s, ok := i.blobs.(interface{ CanSign() bool }); ok && s.CanSign() {
		return true
	}
	return i.fallback != nil
}

// Sign returns a read-only URL for objectKey. It does not check that the
// object exists; Store.IssueURL does that first.
func (i *Issuer) Sign(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if native, ok := i.blobs.(URLSigner); ok {
		url, err := native.SignURL(ctx, objectKey, expiry)
		switch {
		case err == nil && url != "":
			return url, nil
		case err != nil && !errors.Is(err, ErrSigningUnavailable):
			return "", &StorageError{Backend: i.blobs.Kind(), Key: objectKey, Op: "sign", Err: err}
		}
	}
	if i.fallback == nil {
		return "", fmt.Errorf("%w: backend %s has no signing key", ErrSigningUnavailable, i.blobs.Kind())
	}
	url, err := i.fallback.SignURL(ctx, objectKey, expiry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	if url == "" {
		return "", ErrSigningUnavailable
	}
	return url, nil
}
