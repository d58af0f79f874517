package cmd

import (
	"fmt"
	"os"

	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/lib"

	"github.com/spf13/cobra"
)

var configSetCmd = &cobra.Command{
	Use:     "config-set",
	Short:   "Set the value of a config option",
	GroupID: GROUP_ID_CONFIG,
	Run: func(cmd *cobra.Command, args []string) {
		lib.CheckFatalError(cmd.Help())
		os.Exit(1)
	},
}

func setConfigOption(opt configOption, val string) error {
	ctx := hctx.MakeContext()
	if opt.setSetting != nil {
		settings := hctx.GetSettings(ctx)
		scratch := settings.Get()
		if err := opt.setSetting(&scratch, val); err != nil {
			return err
		}
		settings.Subscribe(func(s hctx.Settings) {
			hctx.GetLogger().Infof("Updated settings via config-set %s: %+v", opt.name, s)
		})
		return settings.Update(func(s *hctx.Settings) {
			_ = opt.setSetting(s, val)
		})
	}
	config := hctx.GetConf(ctx)
	if err := opt.setConfig(config, val); err != nil {
		return err
	}
	return hctx.SetConfig(config)
}

func init() {
	rootCmd.AddCommand(configSetCmd)
	for _, opt := range configOptions {
		opt := opt
		args := cobra.ExactArgs(1)
		if len(opt.validArgs) > 0 {
			args = cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)
		}
		configSetCmd.AddCommand(&cobra.Command{
			Use:       opt.name,
			Short:     opt.short,
			Args:      args,
			ValidArgs: opt.validArgs,
			Run: func(cmd *cobra.Command, args []string) {
				lib.CheckFatalError(setConfigOption(opt, args[0]))
				fmt.Printf("Updated %s to %s\n", opt.name, args[0])
			},
		})
	}
}
