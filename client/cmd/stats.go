package cmd

import (
	"fmt"

	"github.com/reportproxy/reportproxy/client/lib"

	"github.com/spf13/cobra"
)

var (
	statsPerQuery *bool
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "View aggregate serving stats across all queries",
	GroupID: GROUP_ID_OPS,
	Run: func(cmd *cobra.Command, args []string) {
		path := "/internal/api/v1/stats"
		if *statsPerQuery {
			path = "/internal/api/v1/usage-stats"
		}
		respBody, err := lib.ApiGet(path)
		lib.CheckFatalError(err)
		fmt.Print(string(respBody))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsPerQuery = statsCmd.Flags().Bool("per-query", false, "Break the stats down per query")
}
