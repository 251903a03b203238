package cli

import (
	"fmt"
	"os"

	"github.com/panoptikon-go/panoptikon/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgDir string
	cfg    *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "panoptikon",
	Short: "Local media-indexing and retrieval engine",
	Long: `panoptikon indexes folders of files, runs pluggable extractors
(tagging, OCR, speech-to-text, image/text embeddings) through an external
inference service, and serves multi-modal search over the result.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfigFromDir(cfgDir)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	wd, _ := os.Getwd()
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config-dir", wd, "directory to search for .panoptikon/config.yml (env vars still win)")
}
