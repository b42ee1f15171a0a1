package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/reportproxy/reportproxy/client/lib"
	"github.com/reportproxy/reportproxy/shared"

	"github.com/spf13/cobra"
)

var (
	createOwner     *string
	createName      *string
	createRequest   *string
	createInterval  *int
	createFormats   *[]string
	createAnonymize *bool
	createDisabled  *bool
)

var createCmd = &cobra.Command{
	Use:     "create",
	Short:   "Register a new query to be fetched and cached on a schedule",
	GroupID: GROUP_ID_QUERIES,
	Run: func(cmd *cobra.Command, args []string) {
		req := shared.QueryUpsertRequest{
			OwnerRef:        *createOwner,
			Name:            *createName,
			Request:         *createRequest,
			RefreshInterval: *createInterval,
			Formats:         shared.FormatList(*createFormats),
			Anonymize:       *createAnonymize,
			Enabled:         !*createDisabled,
		}
		reqBody, err := json.Marshal(req)
		lib.CheckFatalError(err)
		respBody, err := lib.ApiPost("/internal/api/v1/create-query", "application/json", reqBody)
		lib.CheckFatalError(err)
		var created shared.QueryDefinition
		lib.CheckFatalError(json.Unmarshal(respBody, &created))
		fmt.Printf("Created query %s\n", created.QueryId)
		lib.DisplayQueries([]*shared.QueryDefinition{&created})
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createOwner = createCmd.Flags().String("owner", "", "Owner reference to attribute the query to")
	createName = createCmd.Flags().StringP("name", "n", "", "Human readable name for the query")
	createRequest = createCmd.Flags().StringP("request", "r", "", "Upstream request URL, may contain {today} and {Ndaysago} placeholders")
	createInterval = createCmd.Flags().IntP("interval", "i", 3600, "Refresh interval in seconds")
	createFormats = createCmd.Flags().StringSlice("formats", shared.SupportedFormats, "Output formats the public endpoint may serve")
	createAnonymize = createCmd.Flags().Bool("anonymize", false, "Strip identifying properties from cached responses")
	createDisabled = createCmd.Flags().Bool("disabled", false, "Register the query without enabling it")
	lib.CheckFatalError(createCmd.MarkFlagRequired("name"))
	lib.CheckFatalError(createCmd.MarkFlagRequired("request"))
}
