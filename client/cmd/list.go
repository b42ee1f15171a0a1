package cmd

import (
	"encoding/json"
	"net/url"

	"github.com/reportproxy/reportproxy/client/lib"
	"github.com/reportproxy/reportproxy/shared"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	listOwner *string
	listState *string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List registered queries",
	GroupID: GROUP_ID_QUERIES,
	Run: func(cmd *cobra.Command, args []string) {
		path := "/internal/api/v1/list-queries"
		if *listOwner != "" {
			path += "?owner=" + url.QueryEscape(*listOwner)
		}
		respBody, err := lib.ApiGet(path)
		lib.CheckFatalError(err)
		var queries []*shared.QueryDefinition
		lib.CheckFatalError(json.Unmarshal(respBody, &queries))
		if *listState != "" {
			queries = lo.Filter(queries, func(query *shared.QueryDefinition, _ int) bool {
				return string(query.State()) == *listState
			})
		}
		lib.DisplayQueries(queries)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listOwner = listCmd.Flags().String("owner", "", "Only list queries belonging to this owner")
	listState = listCmd.Flags().String("state", "", "Only list queries in this state (active, paused_error, paused_abandoned)")
}
