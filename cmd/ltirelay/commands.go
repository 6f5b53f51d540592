package main

import (
	"fmt"
	"os"

	"github.com/aussiebroadwan/ltirelay/internal/relay/app"
	httpapi "github.com/aussiebroadwan/ltirelay/internal/relay/http"
	"github.com/spf13/cobra"
)

// rootCmd is the ltirelay entry point. Configuration comes from the
// environment (and LTI_ENV_FILE), never from flags.
var rootCmd = &cobra.Command{
	Use:           "ltirelay",
	Short:         "Relay LTI 1.1 launches and AI grades back to the LMS",
	Version:       app.BuildVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// serveCmd runs the long-lived HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve every endpoint over HTTP until SIGINT or SIGTERM",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// cgiCmd answers one request from a CGI-capable web server
var cgiCmd = &cobra.Command{
	Use:   "cgi <launch|grade>",
	Short: "Answer a single CGI request with one endpoint",
	Long: `Answer the request described by the CGI environment and exit.

Install one script per endpoint, for example:

  #!/bin/sh
  exec /usr/local/bin/ltirelay cgi launch

Logs go to stderr since stdout carries the response.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{httpapi.EndpointLaunch, httpapi.EndpointGrade},
	RunE:      runCGI,
}

// gcCmd sweeps expired sessions once
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete expired sessions once and exit",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

func init() {
	rootCmd.AddCommand(serveCmd, cgiCmd, gcCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	application, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return application.Run()
}

func runCGI(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.LogOutput = os.Stderr

	application, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return application.ServeCGI(args[0])
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := cmd.Context()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	deleted, err := application.Sweep(ctx)
	if err != nil {
		return err
	}
	application.Logger().Info("expired sessions removed", "deleted", deleted)
	return nil
}
