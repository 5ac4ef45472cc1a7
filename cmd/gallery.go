package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the trained gallery",
}

var galleryInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print gallery identities and reference counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGallery(cmd)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tREFERENCES")
		for _, id := range g.Identities() {
			fmt.Fprintf(w, "%s\t%s\t%d\n", id.Key, id.Name, len(id.Embeddings))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%d identities, %d embeddings\n", g.Len(), g.NumEmbeddings())
		return nil
	},
}

var galleryOutliersCmd = &cobra.Command{
	Use:   "outliers",
	Short: "Find reference images that look mislabeled",
	Long: `Outliers searches the gallery for reference embeddings whose nearest
neighbors mostly belong to other identities. Those usually point at a photo
filed under the wrong name or a bad crop worth re-shooting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGallery(cmd)
		if err != nil {
			return err
		}
		k := mustGetInt(cmd, "neighbors")
		if k <= 0 {
			return fmt.Errorf("--neighbors must be positive")
		}

		outliers := gallery.FindOutliers(g, k)

		if mustGetBool(cmd, "json") {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(outliers)
		}

		if len(outliers) == 0 {
			fmt.Println("No outliers found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tFOREIGN/NEIGHBORS\tCENTROID DIST")
		for _, o := range outliers {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.3f\n", o.Name, o.Source, o.ForeignNeighbors, o.Neighbors, o.DistFromCentroid)
		}
		return w.Flush()
	},
}

func loadGallery(cmd *cobra.Command) (*gallery.Gallery, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	enc := embedder.New(cfg.Embedder.URL, cfg.Embedder.Dim)
	store := gallery.NewStore(cfg.ImagesDir, cfg.CachePath, enc, gallery.WithProgress())
	g, err := store.LoadOrBuild(cmd.Context(), cfg.ForceRebuild)
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	return g, nil
}

func init() {
	galleryOutliersCmd.Flags().Int("neighbors", 5, "Number of nearest neighbors to inspect per embedding")
	galleryOutliersCmd.Flags().Bool("json", false, "Output as JSON")
	galleryCmd.AddCommand(galleryInfoCmd)
	galleryCmd.AddCommand(galleryOutliersCmd)
	rootCmd.AddCommand(galleryCmd)
}
