package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var runCommandCmd = &cobra.Command{
	Use:   "run-command NAME COMMAND [ARGS...]",
	Short: "Run a shell command on every node of a running cluster",
	Args:  cobra.MinimumNArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args[1:], " ")
		results, err := manager.RunCommand(cmd.Context(), args[0], command, lo.Must(cmd.Flags().GetBool("leader-only")))

		for _, result := range results {
			if result.Err != nil {
				cmd.PrintErrln(color.HiRedString("[%s] %s", result.Host, result.Err))
				continue
			}
			cmd.Println(color.HiCyanString("[%s]", result.Host))
			if output := strings.TrimRight(result.Output, "\n"); output != "" {
				cmd.Println(output)
			}
		}
		return err
	},
}

var copyFileCmd = &cobra.Command{
	Use:   "copy-file NAME LOCAL_PATH REMOTE_DIR",
	Short: "Copy a local file to every node of a running cluster",
	Args:  cobra.ExactArgs(3),

	RunE: func(cmd *cobra.Command, args []string) error {
		return manager.CopyFile(cmd.Context(), args[0], args[1], args[2], lo.Must(cmd.Flags().GetBool("leader-only")))
	},
}

func init() {
	runCommandCmd.Flags().Bool("leader-only", false, "only run the command on the leader")
	copyFileCmd.Flags().Bool("leader-only", false, "only copy the file to the leader")
}
