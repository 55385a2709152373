package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photolink/internal/web"
	"github.com/kozaktomas/photolink/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Photolink HTTP API.

Scans are submitted with POST /api/v1/scans and monitored with
GET /api/v1/scans/{id} or the /events stream. The local directory
provider is not available over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(a.service, a.cache, web.Options{
		Host:           host,
		Port:           port,
		AllowedOrigins: a.cfg.Web.AllowedOrigins,
		Health: handlers.HealthInfo{
			CacheBackend:  a.cfg.Cache.Backend,
			TextExtractor: a.textName,
			FaceMatching:  a.cache.FaceExtractor() != nil,
		},
		Logger: a.logger,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
		if err := a.service.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("scan jobs did not stop in time", "error", err)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Starting Photolink API on http://%s:%d\n", host, port)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-done
	return nil
}
