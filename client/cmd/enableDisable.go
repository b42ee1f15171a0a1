package cmd

import (
	"fmt"
	"net/url"

	"github.com/reportproxy/reportproxy/client/lib"

	"github.com/spf13/cobra"
)

var enableCmd = &cobra.Command{
	Use:     "enable query-id",
	Short:   "Enable a query so it is scheduled and publicly readable",
	GroupID: GROUP_ID_QUERIES,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setEnabled(args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:     "disable query-id",
	Short:   "Disable a query without deleting it",
	GroupID: GROUP_ID_QUERIES,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setEnabled(args[0], false)
	},
}

func setEnabled(queryId string, enabled bool) {
	_, err := lib.ApiPost(fmt.Sprintf("/internal/api/v1/set-enabled?id=%s&enabled=%v", url.QueryEscape(queryId), enabled), "", nil)
	lib.CheckFatalError(err)
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}
