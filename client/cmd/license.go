package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/lib"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var activateCmd = &cobra.Command{
	Use:     "activate [code]",
	Short:   "Activate a license code on this device to remove the daily limits",
	GroupID: GROUP_ID_LICENSE,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var code string
		if len(args) == 1 {
			code = args[0]
		} else {
			var err error
			code, err = readCode(os.Stdin, os.Stderr)
			lib.CheckFatalError(err)
		}
		ctx := hctx.MakeContext()
		result, err := mustComponents(ctx).Gate.ValidateLicenseCode(ctx, code)
		lib.CheckFatalError(err)
		if !result.Success {
			color.New(color.FgRed).Fprintln(os.Stderr, result.Message)
			os.Exit(1)
		}
		color.New(color.FgGreen).Println(result.Message)
	},
}

// readCode prompts for a license code without echoing it when stdin is a terminal.
func readCode(in *os.File, prompt io.Writer) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		_, _ = io.WriteString(prompt, "License code: ")
		b, err := term.ReadPassword(int(in.Fd()))
		_, _ = io.WriteString(prompt, "\n")
		if err != nil {
			return "", fmt.Errorf("failed to read license code: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read license code from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

var verifyCmd = &cobra.Command{
	Use:     "verify",
	Short:   "Re-validate the activated license with the license server",
	GroupID: GROUP_ID_LICENSE,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := hctx.MakeContext()
		result, err := mustComponents(ctx).Gate.VerifyLicense(ctx)
		lib.CheckFatalError(err)
		source := "license server"
		if result.Cached {
			source = "cached license, the license server is unreachable"
		}
		if !result.Valid {
			color.New(color.FgRed).Printf("License is not valid (%s)\n", source)
			os.Exit(1)
		}
		color.New(color.FgGreen).Printf("License is valid until %s (%s)\n", result.ExpireAt.Format("2006-01-02"), source)
	},
}

var deviceIdCmd = &cobra.Command{
	Use:     "device-id",
	Short:   "Print the id this device is bound to licenses with",
	GroupID: GROUP_ID_LICENSE,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := hctx.MakeContext()
		fmt.Println(mustComponents(ctx).Identity.GetDeviceID(ctx))
	},
}

func init() {
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(deviceIdCmd)
}
