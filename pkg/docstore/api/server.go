// Package api exposes the command registry over HTTP. Commands are reached
// by path: POST /api/add/paragraph runs add_paragraph with the JSON body as
// arguments.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/command"
	"github.com/tendant/simple-document/pkg/docstore/presigned"
)

const (
	ServiceName    = "Word Document Proposal Generator"
	ServiceVersion = "1.0"
)

// maxBodyBytes bounds POST bodies; documents travel through storage, not here
const maxBodyBytes = 1 << 20

// aliases maps legacy endpoint names to commands
var aliases = map[string]string{
	"template_remove": "delete_document_template",
}

// Download pairs a signer with the store its URLs point into
type Download struct {
	Signer *presigned.Signer
	Store  *docstore.Store
}

// Server is the REST connector
type Server struct {
	registry   *command.Registry
	apiKey     string
	debug      bool
	limiter    *RateLimiter
	trustProxy bool
	timeout    time.Duration
	downloads  []Download
	logger     *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithAPIKey requires key on every /api route
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithDebug returns full command output instead of the compact form
func WithDebug(debug bool) Option {
	return func(s *Server) { s.debug = debug }
}

// WithRateLimit limits each client on /api routes. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = NewRateLimiter(perSecond, burst)
	}
}

// WithTrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
// Only enable it behind a proxy that overwrites those headers.
func WithTrustProxy(trust bool) Option {
	return func(s *Server) { s.trustProxy = trust }
}

// WithTimeout sets the per-request deadline
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithDownloads mounts signed download routes
func WithDownloads(downloads ...Download) Option {
	return func(s *Server) { s.downloads = append(s.downloads, downloads...) }
}

// WithLogger sets the request logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server for registry
func New(registry *command.Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		timeout:  60 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes sets up the HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	for _, d := range s.downloads {
		if d.Signer != nil && d.Signer.IsEnabled() && d.Store != nil {
			presigned.Mount(r, d.Signer, d.Store)
		}
	}

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(APIKeyMiddleware(s.apiKey))

		r.Get("/list/all/templates", s.handleListAll("list_document_templates"))
		r.Get("/list/all/documents", s.handleListAll("list_available_documents"))
		r.Get("/tools", s.handleTools)
		r.Post("/*", s.handlePost)
		r.Get("/*", s.handleGet)
	})

	return r
}

// ServiceCard is the body of GET /
type ServiceCard struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	Description    string `json:"description"`
	ToolsAvailable int    `json:"tools_available"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	n := s.registry.Len()
	render.JSON(w, r, ServiceCard{
		Name:           ServiceName,
		Version:        ServiceVersion,
		Description:    fmt.Sprintf("REST API for proposal generation - %d tools", n),
		ToolsAvailable: n,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "healthy", "tools": s.registry.Len()})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.registry.Specs())
}

func (s *Server) handleListAll(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.dispatch(w, r, name, nil)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	name := commandName(chi.URLParam(r, "*"))
	if _, ok := s.registry.Lookup(name); !ok {
		writeDetail(w, r, http.StatusNotFound, "Tool not found: "+name)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, r, http.StatusBadRequest, "Invalid parameters: "+err.Error())
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 && !json.Valid(body) {
		writeDetail(w, r, http.StatusBadRequest, "Invalid parameters: body is not valid JSON")
		return
	}
	s.dispatch(w, r, name, body)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := commandName(chi.URLParam(r, "*"))
	spec, ok := s.registry.Lookup(name)
	if !ok {
		writeDetail(w, r, http.StatusNotFound, "Tool not found: "+name)
		return
	}
	if !spec.NoArgs() {
		writeDetail(w, r, http.StatusBadRequest, fmt.Sprintf("Function %s requires parameters. Use POST instead.", name))
		return
	}
	s.dispatch(w, r, name, nil)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, name string, body json.RawMessage) {
	res, err := s.registry.Dispatch(r.Context(), name, body)
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		writeDetail(w, r, http.StatusNotFound, "Tool not found: "+name)
		return
	case errors.Is(err, command.ErrInvalidArguments):
		writeDetail(w, r, http.StatusBadRequest, "Invalid parameters: "+err.Error())
		return
	case err != nil:
		s.logger.Error("dispatch failed", "command", name, "error", err)
		writeDetail(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, map[string]string{"result": s.format(res)})
}

func (s *Server) format(res command.Result) string {
	if s.debug {
		return res.Text()
	}
	return Compact(res)
}

// Compact reduces a result to "ok" plus its URL, or to a short error class.
// Some chat clients filter long tool output.
func Compact(res command.Result) string {
	switch {
	case !res.OK && res.NotFound:
		return "error: not found"
	case !res.OK && res.Invalid:
		return "error: invalid"
	case !res.OK:
		return "error"
	case res.URL != "":
		return "ok\n" + res.URL
	default:
		return "ok"
	}
}

// commandName converts a route path to a command name: add/paragraph
// becomes add_paragraph.
func commandName(path string) string {
	name := strings.ReplaceAll(strings.Trim(path, "/"), "/", "_")
	if alias, ok := aliases[name]; ok {
		return alias
	}
	return name
}
