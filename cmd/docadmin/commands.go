package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-document/pkg/docstore"
	"github.com/tendant/simple-document/pkg/docstore/command"
	"github.com/tendant/simple-document/pkg/docstore/config"
	"github.com/tendant/simple-document/pkg/docstore/docx"
	"github.com/tendant/simple-document/pkg/docstore/presigned"
)

// NewToolsCommand lists the registered commands
func NewToolsCommand(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available document commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(app *config.App) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tGROUP\tREQUIRED")
				for _, spec := range app.Registry.Specs() {
					var required []string
					for _, p := range spec.Params {
						if p.Required {
							required = append(required, p.Name)
						}
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Name, spec.Group, strings.Join(required, ","))
				}
				return w.Flush()
			})
		},
	}
}

// NewRunCommand dispatches one command with JSON arguments
func NewRunCommand(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run <command> [json-arguments]",
		Short: "Run a document command",
		Long: `Run a document command with its arguments as a JSON object.

  docadmin run create_document '{"filename": "proposal", "title": "Proposal"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
				if !json.Valid(raw) {
					return fmt.Errorf("arguments are not valid JSON")
				}
			}
			return withApp(cmd, load, func(app *config.App) error {
				res, err := app.Registry.Dispatch(cmd.Context(), args[0], raw)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Text())
				if !res.OK {
					return errors.New("command failed")
				}
				return nil
			})
		},
	}
}

// NewListCommand lists stored documents
func NewListCommand(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents with their expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(app *config.App) error {
				entries, err := app.Documents.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tSIZE\tCREATED\tEXPIRES")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Key, humanize.IBytes(uint64(max(e.Size, 0))), when(e.CreatedAt), expiry(e))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d document(s)\n", len(entries))
				return nil
			})
		},
	}
}

// NewTemplatesCommand lists templates
func NewTemplatesCommand(load appLoader) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List document templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(app *config.App) error {
				templates, err := app.Templates.List(cmd.Context(), category)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CATEGORY\tNAME\tSIZE\tAUTHOR\tDESCRIPTION")
				for _, t := range templates {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Category, t.Name, humanize.IBytes(uint64(max(t.Size, 0))), t.Author, t.Description)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list this category")
	return cmd
}

// NewUploadCommand stores a local .docx as a document or template
func NewUploadCommand(load appLoader) *cobra.Command {
	var (
		name        string
		ttl         int
		noExpiry    bool
		asTemplate  bool
		category    string
		description string
		author      string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a .docx file as a document or template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := docx.Decode(data); err != nil {
				return fmt.Errorf("%s is not a Word document: %w", args[0], err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			return withApp(cmd, load, func(app *config.App) error {
				ctx := cmd.Context()
				if asTemplate {
					tmpl, err := app.Templates.Save(ctx, name, data, docstore.TemplateInfo{
						Category:    category,
						Description: description,
						Author:      author,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Template %s saved (%s)\n", tmpl.Key, humanize.IBytes(uint64(len(data))))
					return nil
				}

				var opts []docstore.SaveOption
				switch {
				case noExpiry:
					opts = append(opts, docstore.WithoutExpiry())
				case cmd.Flags().Changed("ttl"):
					opts = append(opts, docstore.WithTTL(ttl))
				}
				res, err := app.Documents.Save(ctx, command.EnsureDocx(name), data, opts...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Document %s saved (%s)\n", res.Key, humanize.IBytes(uint64(len(data))))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "stored name (default: file name)")
	cmd.Flags().IntVar(&ttl, "ttl", docstore.DefaultTTLHours, "lifetime in hours")
	cmd.Flags().BoolVar(&noExpiry, "no-expiry", false, "never expire the document")
	cmd.Flags().BoolVar(&asTemplate, "template", false, "store as a template")
	cmd.Flags().StringVar(&category, "category", docstore.DefaultCategory, "template category")
	cmd.Flags().StringVar(&description, "description", "", "template description")
	cmd.Flags().StringVar(&author, "author", command.DefaultTemplateAuthor, "template author")
	return cmd
}

// NewDownloadCommand writes a stored document to a local file
func NewDownloadCommand(load appLoader) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <name>",
		Short: "Download a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(app *config.App) error {
				blob, err := app.Documents.Get(cmd.Context(), command.EnsureDocx(args[0]))
				if err != nil {
					return err
				}
				out := outputPath
				if out == "" {
					out = filepath.Base(blob.Key)
				}
				if err := os.WriteFile(out, blob.Data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s (%s)\n", blob.Key, out, humanize.IBytes(uint64(len(blob.Data))))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: document name)")
	return cmd
}

// NewFetchCommand downloads a signed URL
func NewFetchCommand() *cobra.Command {
	var (
		outputPath string
		retries    int
	)

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download a document from a signed URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath == "" {
				return errors.New("--output is required")
			}
			f, err := os.Create(outputPath)
			if err != nil {
				return err
			}
			defer f.Close()

			verbose, _ := cmd.Flags().GetBool("verbose")
			opts := []presigned.ClientOption{presigned.WithRetry(retries, time.Second)}
			if verbose {
				opts = append(opts, presigned.WithProgress(func(n int64) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%s", humanize.IBytes(uint64(n)))
				}))
			}
			n, err := presigned.NewClient(opts...).Download(cmd.Context(), args[0], f)
			if err != nil {
				os.Remove(outputPath)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", outputPath, humanize.IBytes(uint64(n)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file")
	cmd.Flags().IntVar(&retries, "retries", 3, "download attempts")
	return cmd
}

// NewCleanupCommand deletes expired documents and templates
func NewCleanupCommand(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(app *config.App) error {
				var errs []error
				for _, store := range []*docstore.Store{app.Documents, app.Templates.Store()} {
					res, err := store.Cleanup(cmd.Context())
					if res != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted %d expired blob(s)\n", store.Container(), res.Deleted)
						for _, key := range res.Failed {
							fmt.Fprintf(cmd.OutOrStdout(), "%s: failed to delete %s\n", store.Container(), key)
						}
					}
					if err != nil {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
}

// NewInfoCommand prints storage diagnostics
func NewInfoCommand(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show storage configuration and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(app *config.App) error {
				for _, store := range []*docstore.Store{app.Documents, app.Templates.Store()} {
					info, err := store.Info(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", info.Container, info.Backend)
					fmt.Fprintf(cmd.OutOrStdout(), "  Remote: %t  TTL: %dh  Signing: %t\n", info.Remote, info.DefaultTTLHours, info.SigningAvailable)
					fmt.Fprintf(cmd.OutOrStdout(), "  Blobs: %d  Size: %s\n", info.BlobCount, humanize.IBytes(uint64(max(info.TotalBytes, 0))))
				}
				return nil
			})
		},
	}
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func expiry(e docstore.Entry) string {
	switch {
	case e.ExpiresAt.IsZero():
		return "never"
	case e.Expired:
		return "expired " + humanize.Time(e.ExpiresAt)
	}
	return humanize.Time(e.ExpiresAt)
}
