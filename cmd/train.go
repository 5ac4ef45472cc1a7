package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Encode training images and build the gallery cache",
	Long: `Train reads every image in the training directory, encodes each face
through the embedding service, groups the results by identity (filename up to
the first underscore), and writes the gallery cache. Unchanged directories
reuse the cache on later runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dir := mustGetString(cmd, "images"); dir != "" {
			cfg.ImagesDir = dir
		}
		if path := mustGetString(cmd, "cache"); path != "" {
			cfg.CachePath = path
		}
		force := cfg.ForceRebuild || mustGetBool(cmd, "force")

		enc := embedder.New(cfg.Embedder.URL, cfg.Embedder.Dim)
		store := gallery.NewStore(cfg.ImagesDir, cfg.CachePath, enc, gallery.WithProgress())

		g, err := store.LoadOrBuild(cmd.Context(), force)
		if err != nil {
			return fmt.Errorf("building gallery: %w", err)
		}

		fmt.Printf("Gallery ready: %d identities, %d embeddings\n", g.Len(), g.NumEmbeddings())
		fmt.Printf("Cache: %s\n", cfg.CachePath)
		return nil
	},
}

func init() {
	trainCmd.Flags().Bool("force", false, "Rebuild even when the cache is up to date")
	trainCmd.Flags().String("images", "", "Training images directory (overrides config)")
	trainCmd.Flags().String("cache", "", "Gallery cache path (overrides config)")
	rootCmd.AddCommand(trainCmd)
}
