package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/cooldown"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition web server",
	Long: `Serve loads the gallery and exposes the recognition session over
HTTP: capture clients post embeddings or images to /api/v1/recognize, the
attendance file is browsable, and /api/v1/events streams recognition events
live over SSE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		port := mustGetInt(cmd, "port")
		host := mustGetString(cmd, "host")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		enc := embedder.New(cfg.Embedder.URL, cfg.Embedder.Dim)
		store := gallery.NewStore(cfg.ImagesDir, cfg.CachePath, enc, gallery.WithProgress())
		g, err := store.LoadOrBuild(ctx, cfg.ForceRebuild)
		if err != nil {
			return fmt.Errorf("loading gallery: %w", err)
		}
		fmt.Printf("Gallery loaded: %d identities, %d embeddings\n", g.Len(), g.NumEmbeddings())

		led, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("opening attendance file: %w", err)
		}
		defer led.Close()

		session := recognizer.NewSession(g, cfg.Tolerance, cooldown.New(cfg.Cooldown()), led)
		server := web.NewServer(cfg, session, enc, port, host)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	rootCmd.AddCommand(serveCmd)
}
