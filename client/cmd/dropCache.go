package cmd

import (
	"fmt"
	"net/url"

	"github.com/reportproxy/reportproxy/client/lib"

	"github.com/spf13/cobra"
)

var dropCacheCmd = &cobra.Command{
	Use:     "drop-cache query-id",
	Short:   "Discard the cached payload so the next refresh starts fresh",
	GroupID: GROUP_ID_OPS,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, err := lib.ApiPost("/internal/api/v1/drop-cache?id="+url.QueryEscape(args[0]), "", nil)
		lib.CheckFatalError(err)
		fmt.Println("Dropped the cached response. The public endpoint will answer notReady until the next successful fetch.")
	},
}

func init() {
	rootCmd.AddCommand(dropCacheCmd)
}
