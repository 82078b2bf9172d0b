package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Face Engine HTTP API.
The server exposes encoding, enrollment, verification and administrative
endpoints under /api/v1.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// saveIndex persists the in-memory HNSW index during shutdown.
func saveIndex(e *engine) {
	path := e.cfg.Database.HNSWIndexPath
	if e.gallery.Index() == nil || path == "" {
		return
	}
	if err := e.gallery.SaveIndex(path); err != nil {
		fmt.Printf("Warning: failed to save HNSW index: %v\n", err)
	} else {
		fmt.Printf("HNSW index saved to %s\n", path)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		e.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		e.cfg.Web.Host = host
	}

	fmt.Printf("Using %s store (%s)\n", backendName(e.cfg.Database.URL), e.encoder.Name())
	if err := e.prepareIndex(ctx); err != nil {
		return err
	}
	fmt.Printf("Candidate mode: %s\n", e.gallery.Mode())

	server := web.NewServer(e.cfg, web.Deps{
		Store:      e.store,
		Encoder:    e.encoder,
		Gallery:    e.gallery,
		Identifier: e.identifier,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Engine on http://%s:%d\n", e.cfg.Web.Host, e.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone

	// Requests have drained; the index now reflects every enrollment.
	saveIndex(e)
	return nil
}
