package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-attendance/internal/cooldown"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/match"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize faces in a single image",
	Long: `Recognize sends one image through the embedding service and matches
every detected face against the gallery. With --mark, matched faces are also
appended to the attendance file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		mark := mustGetBool(cmd, "mark")

		enc := embedder.New(cfg.Embedder.URL, cfg.Embedder.Dim)
		store := gallery.NewStore(cfg.ImagesDir, cfg.CachePath, enc)
		g, err := store.LoadOrBuild(cmd.Context(), cfg.ForceRebuild)
		if err != nil {
			return fmt.Errorf("loading gallery: %w", err)
		}

		data, err := os.ReadFile(args[0]) //nolint:gosec // path is a CLI argument
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		if scaled, err := frame.DownscaleJPEG(data, cfg.FrameScale); err == nil {
			data = scaled
		}

		faces, err := enc.DetectAndEncode(cmd.Context(), data)
		if err != nil {
			return fmt.Errorf("embedding service: %w", err)
		}
		if len(faces) == 0 {
			fmt.Println("No faces found")
			return nil
		}

		var led *ledger.Ledger
		if mark {
			led, err = ledger.Open(cfg.LedgerPath)
			if err != nil {
				return fmt.Errorf("opening attendance file: %w", err)
			}
			defer led.Close()
		}
		tracker := cooldown.New(cfg.Cooldown())
		now := time.Now()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FACE\tNAME\tDISTANCE\tMATCHED\tRECORDED")
		for i, f := range faces {
			result := match.Match(f.Embedding, g, cfg.Tolerance)
			recorded := "-"
			if mark && result.Matched && tracker.ShouldAccept(result.Key, now) {
				outcome, err := led.Record(result.Name, now)
				if err != nil {
					return fmt.Errorf("recording attendance: %w", err)
				}
				recorded = string(outcome)
			}
			name := result.Name
			if !result.Matched {
				name = "(unknown)"
			}
			fmt.Fprintf(w, "%d\t%s\t%.3f\t%t\t%s\n", i+1, name, result.Distance, result.Matched, recorded)
		}
		return w.Flush()
	},
}

func init() {
	recognizeCmd.Flags().Bool("mark", false, "Append matched faces to the attendance file")
	rootCmd.AddCommand(recognizeCmd)
}
