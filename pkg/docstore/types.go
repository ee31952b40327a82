package docstore

import (
	"strconv"
	"strings"
	"time"
)

// Metadata keys stamped on every blob
const (
	MetaCreatedAt = "created_at"
	MetaExpiresAt = "expires_at"
	MetaTTLHours  = "ttl_hours"

	MetaDescription = "description"
	MetaAuthor      = "author"
	MetaCategory    = "category"
	MetaCreated     = "created"
)

// DocxContentType is the MIME type of WordprocessingML documents
const DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// DefaultTTLHours applies when neither the caller nor the store sets a TTL
const DefaultTTLHours = 24

// Blob is a stored object together with its content
type Blob struct {
	Key         string
	Data        []byte
	Size        int64
	ContentType string
	CreatedAt   time.Time
	ExpiresAt   time.Time // zero when the blob never expires
	TTLHours    int
	Metadata    map[string]string
}

// Entry is one row of a Store listing
type Entry struct {
	Key       string            `json:"key"`
	Size      int64             `json:"size"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
	Expired   bool              `json:"expired"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SaveResult reports the outcome of Store.Save
type SaveResult struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	TTLHours  int       `json:"ttl_hours,omitempty"`
	Remote    bool      `json:"remote"`
}

// CleanupResult reports the outcome of Store.Cleanup
type CleanupResult struct {
	Deleted int      `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// StorageInfo is a diagnostic snapshot of a Store
type StorageInfo struct {
	Backend          string   `json:"backend"`
	Container        string   `json:"container"`
	Remote           bool     `json:"remote"`
	DefaultTTLHours  int      `json:"default_ttl_hours"`
	SigningAvailable bool     `json:"signing_available"`
	BlobCount        int      `json:"blob_count"`
	TotalBytes       int64    `json:"total_bytes"`
	Keys             []string `json:"keys"`
}

// formatTime renders timestamps the way they are stored in metadata
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// legacy blobs carry naive ISO timestamps without a zone; they are UTC
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// lifecycle extracts TTL metadata. Blobs without a parseable expires_at
// never expire.
func lifecycle(meta map[string]string) (created, expires time.Time, ttl int) {
	created, _ = parseTime(lookupMeta(meta, MetaCreatedAt))
	expires, _ = parseTime(lookupMeta(meta, MetaExpiresAt))
	if v, err := strconv.Atoi(lookupMeta(meta, MetaTTLHours)); err == nil {
		ttl = v
	}
	return created, expires, ttl
}

// lookupMeta tolerates backends that change the case of metadata keys
func lookupMeta(meta map[string]string, key string) string {
	if v, ok := meta[key]; ok {
		return v
	}
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
