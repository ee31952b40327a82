// Package docstore keeps office documents as ephemeral blobs in a pluggable
// object store and exposes the operations agents use to build them.
//
// A Store wraps one BlobStore container and stamps every saved blob with
// created_at, expires_at and ttl_hours metadata. Expired blobs are deleted
// lazily on read and in bulk by Cleanup. Backends that keep data on the local
// machine (see LocalStore) are treated as non-remote: TTL is not enforced and
// RemoteEnabled reports false so callers can tell the fallback is active.
//
// TemplateRepository maps (category, name) pairs onto a second Store that
// never expires, and Assembler is the only component that decodes documents:
// it loads a blob, applies a mutation and saves the result as a single step.
//
// Backends live under storage/ (memory, fs, s3, azure, postgres). The
// capability URL for a blob comes from the backend when it can sign natively
// and from an HMAC URLSigner otherwise; when neither is available the call
// fails with ErrSigningUnavailable rather than returning an unsigned link.
package docstore
