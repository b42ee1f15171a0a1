package cmd

import (
	"fmt"
	"net/url"

	"github.com/reportproxy/reportproxy/client/lib"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:     "run query-id",
	Short:   "Refresh a query's cache right now instead of waiting for its schedule",
	GroupID: GROUP_ID_OPS,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, err := lib.ApiPost("/internal/api/v1/run-query?id="+url.QueryEscape(args[0]), "", nil)
		lib.CheckFatalError(err)
		fmt.Println("Triggered a refresh. Run `reportproxy status` to see the outcome.")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
