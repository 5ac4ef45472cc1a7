package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/cooldown"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live recognition loop over a frame drop directory",
	Long: `Run loads the gallery, then watches a directory into which a capture
process drops camera frames. Every new frame is downscaled, sent to the
embedding service, and each detected face is matched against the gallery.
Accepted matches are appended to the attendance file, at most once per
cooldown window per person. Stop with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		framesDir := mustGetString(cmd, "frames")
		interval := time.Duration(mustGetInt(cmd, "poll-ms")) * time.Millisecond
		if interval <= 0 {
			return fmt.Errorf("--poll-ms must be positive")
		}

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
		events, cancelEvents := session.Subscribe()
		defer cancelEvents()
		go printEvents(events)

		observations := make(chan recognizer.Observation)
		go func() {
			defer close(observations)
			watchFrames(ctx, cfg, enc, framesDir, interval, observations)
		}()

		fmt.Printf("Watching %s (tolerance %g, cooldown %s)\n", framesDir, cfg.Tolerance, cfg.Cooldown())
		if err := session.Run(ctx, observations); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Println("Recognition loop stopped")
		return nil
	},
}

// printEvents logs recognition outcomes for the terminal.
func printEvents(events <-chan recognizer.Event) {
	for event := range events {
		switch {
		case event.Error != "":
			fmt.Printf("Warning: %s matched but not recorded: %s\n", event.Name, event.Error)
		case event.Accepted:
			fmt.Printf("%s  %s (distance %.3f, %s)\n",
				event.At.Format("15:04:05"), event.Name, event.Distance, event.Outcome)
		case event.Matched:
			// Within cooldown; stay quiet to avoid flooding the terminal.
		}
	}
}

// watchFrames polls the drop directory and feeds every face found in a new
// frame into the observation channel. Processed frames are removed so the
// directory stays bounded.
func watchFrames(ctx context.Context, cfg *config.Config, enc *embedder.Client, dir string, interval time.Duration, out chan<- recognizer.Observation) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		files, err := gallery.ListImages(dir)
		if err != nil {
			fmt.Printf("Warning: reading %s: %v\n", dir, err)
			continue
		}

		for _, name := range files {
			path := filepath.Join(dir, name)
			faces, err := processFrame(ctx, cfg, enc, path)
			if err != nil {
				fmt.Printf("Warning: frame %s: %v\n", name, err)
			}
			for _, f := range faces {
				select {
				case out <- recognizer.Observation{Embedding: f.Embedding, At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
			if err := os.Remove(path); err != nil {
				fmt.Printf("Warning: removing frame %s: %v\n", name, err)
			}
		}
	}
}

// processFrame downscales one captured frame and returns the faces the
// embedding service found in it.
func processFrame(ctx context.Context, cfg *config.Config, enc *embedder.Client, path string) ([]embedder.Face, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the watched directory listing
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}

	if scaled, err := frame.DownscaleJPEG(data, cfg.FrameScale); err == nil {
		data = scaled
	}

	return enc.DetectAndEncode(ctx, data)
}

func init() {
	runCmd.Flags().String("frames", "frames", "Directory watched for captured frames")
	runCmd.Flags().Int("poll-ms", 200, "Poll interval for the frame directory in milliseconds")
	rootCmd.AddCommand(runCmd)
}
