package subindex

import (
	"os"

	"github.com/spf13/cobra"

	"subtitle-index/internal/logging"
)

var (
	configFile string
	debug      bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./subtitle-index.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRun = initLog

	rootCmd.AddCommand(serveCmd, scanCmd, versionCmd)
}

// Execute runs the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error("command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "subindex",
	Short: "Subtitle dialogue indexer and clip renderer",
	Long: `subindex indexes the subtitle dialogue of the video files in a set of
libraries, serves a search API over it and renders clips and stills with the
matching dialogue burned in.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	RunE:         runServe,
}

// initLog makes --debug win over LOG_LEVEL. The config loader reads the
// environment, so the override reaches the configured logger as well.
func initLog(_ *cobra.Command, _ []string) {
	if debug {
		_ = os.Setenv("LOG_LEVEL", "debug")
		logging.SetLevel(logging.LevelDebug)
	}
}
