package cmd

import (
	"net/url"

	"github.com/reportproxy/reportproxy/client/lib"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete query-id",
	Short:   "Delete a query along with its cached response and error log",
	GroupID: GROUP_ID_QUERIES,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, err := lib.ApiPost("/internal/api/v1/delete-query?id="+url.QueryEscape(args[0]), "", nil)
		lib.CheckFatalError(err)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
