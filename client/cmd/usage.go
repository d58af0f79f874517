package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/godii/transgemma/client/data"
	"github.com/godii/transgemma/client/hctx"
	"github.com/godii/transgemma/client/lib"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var actionArgs = []string{string(data.ActionParagraph), string(data.ActionSelection)}

func parseActionArg(args []string) data.ActionType {
	action, err := data.ParseActionType(args[0])
	lib.CheckFatalError(err)
	return action
}

var checkCmd = &cobra.Command{
	Use:       "check <paragraph|selection>",
	Short:     "Check whether a metered translation is currently allowed, exits non-zero if not",
	GroupID:   GROUP_ID_USAGE,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: actionArgs,
	Run: func(cmd *cobra.Command, args []string) {
		action := parseActionArg(args)
		ctx := hctx.MakeContext()
		decision, err := mustComponents(ctx).Gate.CheckUsageLimit(ctx, action)
		lib.CheckFatalError(err)
		switch {
		case decision.IsPro:
			fmt.Println("allowed (pro)")
		case decision.Allowed:
			fmt.Printf("allowed (%d remaining today)\n", decision.Remaining)
		default:
			color.New(color.FgRed).Fprintln(os.Stderr, decision.Message)
			os.Exit(1)
		}
	},
}

var recordCmd = &cobra.Command{
	Use:       "record <paragraph|selection>",
	Short:     "Record one successful metered translation",
	GroupID:   GROUP_ID_USAGE,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: actionArgs,
	Run: func(cmd *cobra.Command, args []string) {
		action := parseActionArg(args)
		ctx := hctx.MakeContext()
		stats, err := mustComponents(ctx).Gate.IncrementUsage(ctx, action)
		lib.CheckFatalError(err)
		fmt.Printf("%s: paragraph=%d selection=%d\n", stats.Date, stats.ParagraphCount, stats.SelectionCount)
	},
}

var runCmd = &cobra.Command{
	Use:     "run <paragraph|selection> -- <command> [args...]",
	Short:   "Run a command if the quota allows it, and record the usage if the command succeeds",
	GroupID: GROUP_ID_USAGE,
	Args:    cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		action := parseActionArg(args)
		ctx := hctx.MakeContext()
		err := mustComponents(ctx).Gate.RunMetered(ctx, action, func(ctx context.Context) error {
			c := exec.CommandContext(ctx, args[1], args[2:]...)
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			return c.Run()
		})
		if errors.Is(err, lib.ErrQuotaExceeded) {
			color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		lib.CheckFatalError(err)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(runCmd)
}
