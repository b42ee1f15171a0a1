package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/reportproxy/reportproxy/client/lib"
	"github.com/reportproxy/reportproxy/shared"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status query-id",
	Short:   "View a query's scheduling state, cache freshness, and error log",
	GroupID: GROUP_ID_QUERIES,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		respBody, err := lib.ApiGet("/internal/api/v1/get-query?id=" + url.QueryEscape(args[0]))
		lib.CheckFatalError(err)
		var details shared.QueryDetails
		lib.CheckFatalError(json.Unmarshal(respBody, &details))

		fmt.Printf("Name: %s\n", details.Query.Name)
		fmt.Printf("State: %s\n", details.State)
		fmt.Printf("Enabled: %v\n", details.Query.Enabled)
		fmt.Printf("Request: %s\n", details.Query.Request)
		fmt.Printf("Refresh Interval: %ds\n", details.Query.RefreshInterval)
		fmt.Printf("Consecutive Errors: %d\n", details.Query.ConsecutiveErrorCount)
		fmt.Printf("Public Requests: %d\n", details.Query.PublicRequestCount)
		if details.HasCache {
			fmt.Printf("Cached: yes (fetched at %s)\n", details.FetchedAt.Format("Jan 2 2006 15:04:05 MST"))
		} else {
			fmt.Printf("Cached: no\n")
		}
		if len(details.Errors) > 0 {
			fmt.Println()
			lib.DisplayErrors(details.Errors)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
