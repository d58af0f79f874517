package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/godii/transgemma/client/backend"
	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/lib"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	verbose    *bool
	configFlag *bool
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "View license status and the remaining daily translation quota",
	GroupID: GROUP_ID_LICENSE,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := hctx.MakeContext()
		config := hctx.GetConf(ctx)
		components := mustComponents(ctx)
		status, err := components.Gate.GetLicenseStatus(ctx)
		lib.CheckFatalError(err)

		fmt.Printf("TransGemma: %s\n", lib.Version)
		if status.IsPro {
			color.New(color.FgGreen, color.Bold).Println(status.Message)
		} else {
			color.New(color.FgYellow).Println(status.Message)
		}
		if *verbose {
			fmt.Printf("Device ID: %s\n", components.Identity.GetDeviceID(ctx))
			printBackendStatus(ctx, config, components.Backend)
			stats, err := components.Quota.Read(ctx)
			lib.CheckFatalError(err)
			fmt.Printf("Usage Today (%s): paragraph=%d/%d selection=%d/%d\n", stats.Date, stats.ParagraphCount, config.ParagraphLimit, stats.SelectionCount, config.SelectionLimit)
			if status.IsPro {
				fmt.Printf("License Expires: %s\n", status.ExpireAt.Format("2006-01-02 15:04:05"))
			}
		}
		fmt.Printf("Commit Hash: %s\n", lib.GitCommit)
		if *configFlag {
			y, err := yaml.Marshal(config)
			if err != nil {
				lib.CheckFatalError(fmt.Errorf("failed to marshal config to yaml: %w", err))
			}
			indented := "\t" + strings.ReplaceAll(string(y), "\n", "\n\t")
			fmt.Printf("Full Config:\n%s\n", indented)
		}
	},
}

func printBackendStatus(ctx context.Context, config *hctx.ClientConfig, b backend.EntitlementBackend) {
	if b.Type() == string(backend.BackendTypeOffline) {
		fmt.Println("License Server: Disabled (offline)")
		return
	}
	if config.ServerURL != "" {
		fmt.Println("License Server: " + config.ServerURL)
	}
	if err := b.Ping(ctx); err != nil {
		fmt.Printf("License Server Status: Unreachable (%v)\n", err)
	} else {
		fmt.Println("License Server Status: Reachable")
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	verbose = statusCmd.Flags().BoolP("verbose", "v", false, "Display verbose TransGemma information")
	configFlag = statusCmd.Flags().Bool("full-config", false, "Display TransGemma's full config")
}
