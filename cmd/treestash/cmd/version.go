package cmd

import (
	"github.com/spf13/cobra"
)

// overridden at build time with -ldflags "-X ...cmd.Version=v1.2.3"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		infoLogger.Printf("treestash %s", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
