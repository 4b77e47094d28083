package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("atsrelay %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		if v := crucible.GetVersion(); v.Crucible != "" {
			fmt.Printf("crucible %s\n", v.Crucible)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
