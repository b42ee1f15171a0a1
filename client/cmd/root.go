package cmd

import (
	"os"

	"github.com/reportproxy/reportproxy/client/lib"

	"github.com/spf13/cobra"
)

const (
	GROUP_ID_QUERIES = "group_id:queries"
	GROUP_ID_OPS     = "group_id:ops"
	GROUP_ID_CONFIG  = "group_id:config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reportproxy",
	Short: "reportproxy: Scheduled caching proxy for rate-limited reporting APIs",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_QUERIES, Title: "Query Management"})
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_OPS, Title: "Operations"})
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_CONFIG, Title: "Configuration"})
	rootCmd.Version = "v0." + lib.Version
}
