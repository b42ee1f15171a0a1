package cmd

import (
	"fmt"

	"github.com/reportproxy/reportproxy/client/lib"

	"github.com/spf13/cobra"
)

var (
	configServer   *string
	configUsername *string
	configPassword *string
)

var configCmd = &cobra.Command{
	Use:     "configure",
	Short:   "Save the server URL and admin credentials to ~/.reportproxy.yaml",
	GroupID: GROUP_ID_CONFIG,
	Run: func(cmd *cobra.Command, args []string) {
		config, err := lib.GetConfig()
		lib.CheckFatalError(err)
		if *configServer != "" {
			config.ServerUrl = *configServer
		}
		if *configUsername != "" {
			config.AdminUsername = *configUsername
		}
		if *configPassword != "" {
			config.AdminPassword = *configPassword
		}
		lib.CheckFatalError(lib.SetConfig(config))
		fmt.Printf("Saved config pointing at %s\n", config.ServerUrl)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configServer = configCmd.Flags().String("server", "", "Base URL of the reportproxy server")
	configUsername = configCmd.Flags().String("username", "", "Admin API username")
	configPassword = configCmd.Flags().String("password", "", "Admin API password")
}
