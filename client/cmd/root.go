package cmd

import (
	"context"
	"os"

	"github.com/godii/transgemma/client/lib"

	"github.com/spf13/cobra"
)

var (
	GROUP_ID_USAGE   string = "group_id_usage"
	GROUP_ID_LICENSE string = "group_id_license"
	GROUP_ID_CONFIG  string = "group_id_config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "transgemma",
	Short: "TransGemma: daily translation quota and license management",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func mustComponents(ctx context.Context) *lib.Components {
	components, err := lib.MakeComponents(ctx)
	lib.CheckFatalError(err)
	return components
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_USAGE, Title: "Usage Quota"})
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_LICENSE, Title: "License"})
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_CONFIG, Title: "Configuration"})
	rootCmd.Version = lib.Version
}
