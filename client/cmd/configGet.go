package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/lib"

	"github.com/spf13/cobra"
)

// configOption is a single user-facing config key shared by config-get and config-set.
type configOption struct {
	name      string
	short     string
	validArgs []string
	get       func(config *hctx.ClientConfig) string
	// Exactly one of setSetting and setConfig is set. Settings go through the settings cache
	// so subscribers observe the change.
	setSetting func(s *hctx.Settings, val string) error
	setConfig  func(config *hctx.ClientConfig, val string) error
}

var configOptions = []configOption{
	{
		name:       "hover-enabled",
		short:      "Whether paragraphs are translated on hover",
		validArgs:  []string{"true", "false"},
		get:        func(c *hctx.ClientConfig) string { return strconv.FormatBool(c.Settings.HoverEnabled) },
		setSetting: func(s *hctx.Settings, val string) error { return parseBoolInto(&s.HoverEnabled, val) },
	},
	{
		name:       "select-enabled",
		short:      "Whether selected text is translated",
		validArgs:  []string{"true", "false"},
		get:        func(c *hctx.ClientConfig) string { return strconv.FormatBool(c.Settings.SelectEnabled) },
		setSetting: func(s *hctx.Settings, val string) error { return parseBoolInto(&s.SelectEnabled, val) },
	},
	{
		name:       "source-lang",
		short:      "The language translated from, or auto to detect it",
		get:        func(c *hctx.ClientConfig) string { return c.Settings.SourceLang },
		setSetting: func(s *hctx.Settings, val string) error { s.SourceLang = val; return nil },
	},
	{
		name:       "target-lang",
		short:      "The language translated to",
		get:        func(c *hctx.ClientConfig) string { return c.Settings.TargetLang },
		setSetting: func(s *hctx.Settings, val string) error { s.TargetLang = val; return nil },
	},
	{
		name:       "locale",
		short:      "The language of TransGemma's own messages",
		validArgs:  hctx.SupportedLocales(),
		get:        func(c *hctx.ClientConfig) string { return c.Settings.Locale },
		setSetting: func(s *hctx.Settings, val string) error { s.Locale = val; return nil },
	},
	{
		name:      "server-url",
		short:     "The license server, overridden by $TRANSGEMMA_SERVER",
		get:       func(c *hctx.ClientConfig) string { return c.ServerURL },
		setConfig: func(c *hctx.ClientConfig, val string) error { c.ServerURL = val; return nil },
	},
	{
		name:      "backend-type",
		short:     "How the license server is reached: http, or offline to never use the network",
		validArgs: hctx.SupportedBackendTypes(),
		get:       func(c *hctx.ClientConfig) string { return c.BackendType },
		setConfig: func(c *hctx.ClientConfig, val string) error { c.BackendType = val; return nil },
	},
	{
		name:      "paragraph-limit",
		short:     "Daily paragraph translations allowed without a license",
		get:       func(c *hctx.ClientConfig) string { return strconv.Itoa(c.ParagraphLimit) },
		setConfig: func(c *hctx.ClientConfig, val string) error { return parsePositiveInto(&c.ParagraphLimit, val) },
	},
	{
		name:      "selection-limit",
		short:     "Daily selection translations allowed without a license",
		get:       func(c *hctx.ClientConfig) string { return strconv.Itoa(c.SelectionLimit) },
		setConfig: func(c *hctx.ClientConfig, val string) error { return parsePositiveInto(&c.SelectionLimit, val) },
	},
	{
		name:      "http-timeout",
		short:     "Seconds to wait for the license server before treating it as unreachable",
		get:       func(c *hctx.ClientConfig) string { return strconv.Itoa(c.HTTPTimeoutSeconds) },
		setConfig: func(c *hctx.ClientConfig, val string) error { return parsePositiveInto(&c.HTTPTimeoutSeconds, val) },
	},
}

func parseBoolInto(dst *bool, val string) error {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("unexpected config value %#v, must be one of: true, false", val)
	}
	*dst = b
	return nil
}

func parsePositiveInto(dst *int, val string) error {
	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		return fmt.Errorf("unexpected config value %#v, must be a positive integer", val)
	}
	*dst = i
	return nil
}

var configGetCmd = &cobra.Command{
	Use:     "config-get",
	Short:   "Get the value of a config option",
	GroupID: GROUP_ID_CONFIG,
	Run: func(cmd *cobra.Command, args []string) {
		lib.CheckFatalError(cmd.Help())
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(configGetCmd)
	for _, opt := range configOptions {
		opt := opt
		configGetCmd.AddCommand(&cobra.Command{
			Use:   opt.name,
			Short: opt.short,
			Run: func(cmd *cobra.Command, args []string) {
				ctx := hctx.MakeContext()
				fmt.Println(opt.get(hctx.GetConf(ctx)))
			},
		})
	}
}
