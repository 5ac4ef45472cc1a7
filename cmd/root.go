package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "Face recognition attendance from embedding vectors",
	Long: `Face Attendance identifies people from facial embedding vectors and
records attendance at most once per cooldown window. Face detection and
embedding extraction are delegated to an external embedding service;
this tool owns the gallery, the matching, and the attendance ledger.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().Float64("tolerance", config.DefaultTolerance, "Maximum match distance, lower is stricter")
	rootCmd.PersistentFlags().Int("cooldown", config.DefaultCooldownSeconds, "Cooldown window between accepted matches in seconds")
	rootCmd.PersistentFlags().Bool("force-rebuild", false, "Rebuild the gallery cache even when up to date")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig loads the configuration and layers explicitly set CLI flags on
// top of file and environment values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("tolerance") {
		cfg.Tolerance = mustGetFloat64(cmd, "tolerance")
	}
	if flags.Changed("cooldown") {
		cfg.CooldownSeconds = mustGetInt(cmd, "cooldown")
	}
	if flags.Changed("force-rebuild") {
		cfg.ForceRebuild = mustGetBool(cmd, "force-rebuild")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
