package cmd

import (
	"testing"

	"github.com/godii/transgemma/client/hctx"

	"github.com/stretchr/testify/require"
)

func TestConfigOptionsHaveOneSetter(t *testing.T) {
	seen := map[string]bool{}
	for _, opt := range configOptions {
		require.False(t, seen[opt.name], "duplicate config option %s", opt.name)
		seen[opt.name] = true
		require.NotNil(t, opt.get, opt.name)
		require.True(t, (opt.setSetting == nil) != (opt.setConfig == nil), "option %s must have exactly one setter", opt.name)
	}
}

func TestConfigOptionsRoundTrip(t *testing.T) {
	values := map[string]string{
		"hover-enabled":   "false",
		"select-enabled":  "false",
		"source-lang":     "Chinese",
		"target-lang":     "French",
		"locale":          "zh",
		"server-url":      "http://localhost:8080",
		"backend-type":    "offline",
		"paragraph-limit": "25",
		"selection-limit": "3",
		"http-timeout":    "12",
	}
	config := hctx.DefaultConfig()
	for _, opt := range configOptions {
		val, ok := values[opt.name]
		require.True(t, ok, "missing test value for %s", opt.name)
		if opt.setSetting != nil {
			require.NoError(t, opt.setSetting(&config.Settings, val))
		} else {
			require.NoError(t, opt.setConfig(&config, val))
		}
		require.Equal(t, val, opt.get(&config), opt.name)
	}
	require.Equal(t, 25, config.ParagraphLimit)
}

func TestConfigOptionsRejectBadValues(t *testing.T) {
	var b bool
	require.Error(t, parseBoolInto(&b, "maybe"))
	require.NoError(t, parseBoolInto(&b, "true"))
	require.True(t, b)

	i := 10
	require.Error(t, parsePositiveInto(&i, "0"))
	require.Error(t, parsePositiveInto(&i, "-3"))
	require.Error(t, parsePositiveInto(&i, "ten"))
	require.Equal(t, 10, i)
	require.NoError(t, parsePositiveInto(&i, "7"))
	require.Equal(t, 7, i)
}

func TestEveryCommandIsGrouped(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		require.NotEmpty(t, c.GroupID, "command %s has no group", c.Name())
	}
}
