package cmd

import (
	"encoding/json"
	"net/url"

	"github.com/reportproxy/reportproxy/client/lib"
	"github.com/reportproxy/reportproxy/shared"

	"github.com/spf13/cobra"
)

var (
	updateName      *string
	updateRequest   *string
	updateInterval  *int
	updateFormats   *[]string
	updateAnonymize *bool
	updateDisabled  *bool
)

var updateCmd = &cobra.Command{
	Use:     "update query-id",
	Short:   "Replace a query's registration while keeping its id and cache",
	GroupID: GROUP_ID_QUERIES,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req := shared.QueryUpsertRequest{
			Name:            *updateName,
			Request:         *updateRequest,
			RefreshInterval: *updateInterval,
			Formats:         shared.FormatList(*updateFormats),
			Anonymize:       *updateAnonymize,
			Enabled:         !*updateDisabled,
		}
		reqBody, err := json.Marshal(req)
		lib.CheckFatalError(err)
		respBody, err := lib.ApiPost("/internal/api/v1/update-query?id="+url.QueryEscape(args[0]), "application/json", reqBody)
		lib.CheckFatalError(err)
		var updated shared.QueryDefinition
		lib.CheckFatalError(json.Unmarshal(respBody, &updated))
		lib.DisplayQueries([]*shared.QueryDefinition{&updated})
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateName = updateCmd.Flags().StringP("name", "n", "", "Human readable name for the query")
	updateRequest = updateCmd.Flags().StringP("request", "r", "", "Upstream request URL, may contain {today} and {Ndaysago} placeholders")
	updateInterval = updateCmd.Flags().IntP("interval", "i", 3600, "Refresh interval in seconds")
	updateFormats = updateCmd.Flags().StringSlice("formats", shared.SupportedFormats, "Output formats the public endpoint may serve")
	updateAnonymize = updateCmd.Flags().Bool("anonymize", false, "Strip identifying properties from cached responses")
	updateDisabled = updateCmd.Flags().Bool("disabled", false, "Leave the query disabled after updating")
	lib.CheckFatalError(updateCmd.MarkFlagRequired("name"))
	lib.CheckFatalError(updateCmd.MarkFlagRequired("request"))
}
