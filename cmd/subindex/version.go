package subindex

import (
	"fmt"

	"github.com/spf13/cobra"

	"subtitle-index/internal/startup"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		info := startup.GetBuildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "subindex %s (commit %s, built %s, %s %s/%s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
	},
}
