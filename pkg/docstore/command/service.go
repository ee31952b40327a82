package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/mutate"
)

// ErrInvalidInput marks argument values a command rejects after decoding
var ErrInvalidInput = errors.New("invalid input")

// DefaultURLHours is the lifetime of URLs attached to command results
const DefaultURLHours = 24

// Service implements the document commands on top of an Assembler
type Service struct {
	asm      *docstore.Assembler
	urlHours int
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Service
type Option func(*Service)

// WithURLHours sets the lifetime of URLs returned by commands
func WithURLHours(hours int) Option {
	return func(s *Service) {
		s.urlHours = hours
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for generated names
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides the suffix generator used for generated names
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService creates a Service
func NewService(asm *docstore.Assembler, opts ...Option) *Service {
	s := &Service{
		asm:      asm,
		urlHours: DefaultURLHours,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build returns a registry holding every document command
func Build(asm *docstore.Assembler, opts ...Option) *Registry {
	s := NewService(asm, opts...)
	r := NewRegistry(s.logger)
	s.Register(r)
	return r
}

// Register adds every document command to r
func (s *Service) Register(r *Registry) {
	s.registerQuickStart(r)
	s.registerDocuments(r)
	s.registerContent(r)
	s.registerTemplates(r)
}

func (s *Service) docs() *docstore.Store {
	return s.asm.Documents()
}

// url returns a download URL for key, or "" when none can be issued
func (s *Service) url(ctx context.Context, store *docstore.Store, key string) string {
	if store == nil || s.urlHours <= 0 || !store.SigningAvailable() {
		return ""
	}
	u, err := store.IssueURL(ctx, key, s.urlHours)
	if err != nil {
		s.logger.Debug("url not issued", "key", key, "error", err)
		return ""
	}
	return u
}

// withMode applies a per-request substitution mode
func (s *Service) withMode(mode string) (*docstore.Assembler, error) {
	if mode == "" {
		return s.asm, nil
	}
	m, err := mutate.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.asm.WithMode(m), nil
}

// generatedName returns prefix_YYYYMMDD_HHMMSS_<id>.docx
func (s *Service) generatedName(prefix string) string {
	return fmt.Sprintf("%s_%s_%s%s", prefix, s.now().UTC().Format("20060102_150405"), s.newID(), ".docx")
}

// EnsureDocx trims name and appends .docx unless it already ends with it
func EnsureDocx(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasSuffix(strings.ToLower(name), ".docx") {
		return name
	}
	return name + ".docx"
}

func withURL(message, label, url string) Result {
	res := Result{OK: true, Message: message, URL: url}
	if url != "" {
		res.Message += "\n" + label + ": " + url
	}
	return res
}

func size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// failure converts a command error into a Result
func failure(err error) Result {
	res := Result{OK: false, Message: "Error: " + err.Error()}
	switch {
	case docstore.IsNotFound(err):
		res.NotFound = true
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, docstore.ErrDecode),
		errors.Is(err, docstore.ErrInvalidKey),
		errors.Is(err, docstore.ErrInvalidTTL),
		errors.Is(err, mutate.ErrEmptyPattern):
		res.Invalid = true
	}
	return res
}
