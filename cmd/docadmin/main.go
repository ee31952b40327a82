package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-document/pkg/docstore/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand(loadApp)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// appLoader builds the document service for a command run
type appLoader func(cmd *cobra.Command) (*config.App, error)

func NewRootCommand(load appLoader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docadmin",
		Short: "Document store admin CLI",
		Long: `Document store admin CLI

Runs document commands directly against the configured storage backend and
manages stored documents and templates. Storage is configured with the same
environment variables as the servers; a .env file is loaded when present.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("env-file", ".env", "environment file (optional)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewToolsCommand(load))
	rootCmd.AddCommand(NewRunCommand(load))
	rootCmd.AddCommand(NewListCommand(load))
	rootCmd.AddCommand(NewTemplatesCommand(load))
	rootCmd.AddCommand(NewUploadCommand(load))
	rootCmd.AddCommand(NewDownloadCommand(load))
	rootCmd.AddCommand(NewFetchCommand())
	rootCmd.AddCommand(NewCleanupCommand(load))
	rootCmd.AddCommand(NewInfoCommand(load))

	return rootCmd
}

// loadApp reads configuration from the environment. Logs stay quiet unless
// --verbose is set.
func loadApp(cmd *cobra.Command) (*config.App, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(config.WithDotEnv(envFile), config.WithEnv())
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := config.NewLogger(cmd.ErrOrStderr(), level, cfg.LogFormat)
	return cfg.Build(cmd.Context(), logger)
}

func withApp(cmd *cobra.Command, load appLoader, fn func(app *config.App) error) error {
	app, err := load(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
