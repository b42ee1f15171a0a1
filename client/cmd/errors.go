package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/reportproxy/reportproxy/client/lib"
	"github.com/reportproxy/reportproxy/shared"

	"github.com/spf13/cobra"
)

var errorsCmd = &cobra.Command{
	Use:     "errors query-id",
	Short:   "View the recent fetch errors recorded for a query",
	GroupID: GROUP_ID_OPS,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		respBody, err := lib.ApiGet("/internal/api/v1/get-errors?id=" + url.QueryEscape(args[0]))
		lib.CheckFatalError(err)
		var queryErrors []*shared.QueryError
		lib.CheckFatalError(json.Unmarshal(respBody, &queryErrors))
		if len(queryErrors) == 0 {
			fmt.Println("No errors recorded.")
			return
		}
		lib.DisplayErrors(queryErrors)
	},
}

var clearErrorsCmd = &cobra.Command{
	Use:     "clear-errors query-id",
	Short:   "Wipe a query's error log and resume it if it was paused for errors",
	GroupID: GROUP_ID_OPS,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, err := lib.ApiPost("/internal/api/v1/clear-errors?id="+url.QueryEscape(args[0]), "", nil)
		lib.CheckFatalError(err)
	},
}

func init() {
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(clearErrorsCmd)
}
