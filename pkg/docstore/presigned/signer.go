package presigned

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-document/pkg/docstore"
)

const keyPlaceholder = "{key}"

// Signer generates and validates HMAC-signed presigned URLs
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	urlPattern        string // e.g., "/files/word-documents/{key}"
	baseURL           string
	now               func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: 1 * time.Hour,
		urlPattern:        "/files/{key}",
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SignURL generates a presigned URL for the given HTTP method and unescaped
// path. The returned URL carries the escaped path plus signature and
// expires query parameters.
//
//	url, err := signer.SignURL("GET", "/files/docs/my report.docx", 1*time.Hour)
//	// /files/docs/my%20report.docx?signature=abc123...&expires=1696789012
func (s *Signer) SignURL(method, path string, expiresIn time.Duration) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrNoSecretKey
	}

	if expiresIn == 0 {
		expiresIn = s.defaultExpiration
	}
	if expiresIn < 0 {
		return "", fmt.Errorf("presigned: negative expiration %s", expiresIn)
	}

	expiresAt := s.now().Add(expiresIn).Unix()
	signature := s.generateSignature(s.createPayload(method, path, expiresAt))

	return fmt.Sprintf("%s?signature=%s&expires=%d", escapePath(path), signature, expiresAt), nil
}

// SignURLWithBase generates a presigned URL with a base URL prefix
func (s *Signer) SignURLWithBase(baseURL, method, path string, expiresIn time.Duration) (string, error) {
	signedPath, err := s.SignURL(method, path, expiresIn)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(baseURL, "/") + signedPath, nil
}

// ObjectPath renders the URL pattern for objectKey
func (s *Signer) ObjectPath(objectKey string) string {
	return strings.Replace(s.urlPattern, keyPlaceholder, objectKey, 1)
}

// ObjectSigner adapts s to docstore.URLSigner. URLs point at the pattern
// path under the configured base URL and are valid for GET only.
func (s *Signer) ObjectSigner() docstore.URLSigner {
	return objectSigner{s}
}

type objectSigner struct {
	signer *Signer
}

func (o objectSigner) SignURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if !o.signer.IsEnabled() {
		return "", fmt.Errorf("%w: %v", docstore.ErrSigningUnavailable, ErrNoSecretKey)
	}
	return o.signer.SignURLWithBase(o.signer.baseURL, http.MethodGet, o.signer.ObjectPath(objectKey), expiry)
}

// ValidateRequest validates the signature and expiration of an HTTP request.
// Without a secret key every request fails with ErrNoSecretKey.
func (s *Signer) ValidateRequest(r *http.Request) error {
	if len(s.secretKey) == 0 {
		return ErrNoSecretKey
	}

	query := r.URL.Query()
	signature := query.Get("signature")
	expiresStr := query.Get("expires")

	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}

	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	// Preserve original query params (except signature and expires)
	path := r.URL.Path
	cleanQuery := url.Values{}
	for k, v := range query {
		if k != "signature" && k != "expires" {
			cleanQuery[k] = v
		}
	}
	if len(cleanQuery) > 0 {
		path = path + "?" + cleanQuery.Encode()
	}

	return s.Validate(r.Method, path, signature, expiresAt)
}

// Validate validates the signature and expiration for a given method, path, signature, and expiration timestamp
func (s *Signer) Validate(method, path, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}

	expectedSignature := s.generateSignature(s.createPayload(method, path, expiresAt))

	// Constant-time comparison
	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return ErrInvalidSignature
	}

	return nil
}

// ExtractObjectKey extracts the object key from an unescaped URL path based
// on the configured URL pattern
func (s *Signer) ExtractObjectKey(path string) (string, error) {
	idx := strings.Index(s.urlPattern, keyPlaceholder)
	if idx == -1 {
		return "", fmt.Errorf("URL pattern does not contain {key} placeholder")
	}

	prefix := s.urlPattern[:idx]
	suffix := s.urlPattern[idx+len(keyPlaceholder):]

	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("path does not match URL pattern prefix")
	}

	key := strings.TrimPrefix(path, prefix)
	if suffix != "" {
		key = strings.TrimSuffix(key, suffix)
	}
	if key == "" {
		return "", fmt.Errorf("path has an empty object key")
	}

	return key, nil
}

// IsEnabled returns true if a secret key is set
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// createPayload creates the signature payload METHOD|PATH|EXPIRES
func (s *Signer) createPayload(method, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", method, path, expiresAt)
}

// generateSignature generates HMAC-SHA256 signature for the given payload
func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// escapePath escapes each segment of path, keeping any query string
func escapePath(path string) string {
	query := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i:]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/") + query
}
