package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/api"
	"github.com/tendant/simple-document/pkg/docstore/command"
	"github.com/tendant/simple-document/pkg/docstore/presigned"
)

// App is the wired document service
type App struct {
	Config    *Config
	Logger    *slog.Logger
	Backends  *Backends
	Documents *docstore.Store
	Templates *docstore.TemplateRepository
	Assembler *docstore.Assembler
	// Registry holds the commands exposed by transports, already restricted
	// to the configured profile
	Registry  *command.Registry
	Downloads []api.Download
}

// Build connects the backends and wires the stores, assembler and commands
func (c *Config) Build(ctx context.Context, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backends, err := c.OpenBackends(ctx)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	app := &App{Config: c, Logger: logger, Backends: backends}
	docSigner := c.signer(c.Storage.DocumentsContainer)
	tmplSigner := c.signer(c.Storage.TemplatesContainer)

	app.Documents, err = docstore.NewStore(backends.Documents, c.storeOptions(c.Storage.DocumentsContainer, docSigner, logger)...)
	if err != nil {
		backends.Close()
		return nil, err
	}
	templates, err := docstore.NewStore(backends.Templates, c.storeOptions(c.Storage.TemplatesContainer, tmplSigner, logger)...)
	if err != nil {
		backends.Close()
		return nil, err
	}
	app.Templates = docstore.NewTemplateRepository(templates,
		docstore.WithListURLHours(c.URLExpiryHours),
		docstore.WithTemplateLogger(logger),
	)
	app.Assembler = docstore.NewAssembler(app.Documents, app.Templates,
		docstore.WithSubstitutionMode(c.Mode()),
		docstore.WithAssemblerLogger(logger),
	)

	registry := command.Build(app.Assembler,
		command.WithURLHours(c.URLExpiryHours),
		command.WithLogger(logger),
	)
	app.Registry, err = command.ApplyProfile(registry, c.ProfileFile, c.Profile)
	if err != nil {
		backends.Close()
		return nil, err
	}

	if docSigner != nil {
		app.Downloads = []api.Download{
			{Signer: docSigner, Store: app.Documents},
			{Signer: tmplSigner, Store: templates},
		}
	}

	logger.Info("document service ready",
		"backend", backends.Kind,
		"documents", c.Storage.DocumentsContainer,
		"templates", c.Storage.TemplatesContainer,
		"signing", app.Documents.SigningAvailable(),
		"mode", c.Mode().String(),
		"commands", app.Registry.Len(),
	)
	return app, nil
}

// signer returns nil without a signing key so the stores fail closed
func (c *Config) signer(container string) *presigned.Signer {
	if c.SigningKey == "" {
		return nil
	}
	return presigned.New(
		presigned.WithSecretKey(c.SigningKey),
		presigned.WithURLPattern("/files/"+container+"/{key}"),
		presigned.WithBaseURL(c.BaseURL()),
		presigned.WithDefaultExpiration(time.Duration(c.URLExpiryHours)*time.Hour),
	)
}

func (c *Config) storeOptions(container string, signer *presigned.Signer, logger *slog.Logger) []docstore.Option {
	opts := []docstore.Option{
		docstore.WithContainer(container),
		docstore.WithDefaultTTL(c.DefaultTTLHours),
		docstore.WithLogger(logger),
	}
	if signer != nil {
		opts = append(opts, docstore.WithURLSigner(signer.ObjectSigner()))
	}
	return opts
}

// Handler returns the REST connector for the app
func (a *App) Handler() http.Handler {
	return api.New(a.Registry,
		api.WithAPIKey(a.Config.APIKey),
		api.WithDebug(a.Config.Debug()),
		api.WithRateLimit(a.Config.RateLimitPerSecond, a.Config.RateLimitBurst),
		api.WithTrustProxy(a.Config.TrustProxyHeaders),
		api.WithDownloads(a.Downloads...),
		api.WithLogger(a.Logger),
	).Routes()
}

// Close releases backend connections
func (a *App) Close() {
	a.Backends.Close()
}
