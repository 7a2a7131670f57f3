package main

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/gammadia/flotilla/cluster"
)

var addWorkersCmd = &cobra.Command{
	Use:   "add-workers NAME COUNT",
	Short: "Add workers to a running cluster",
	Args:  cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := parseCount(args[1])
		if err != nil {
			return err
		}

		c, err := manager.AddWorkers(cmd.Context(), args[0], count, lo.Must(cmd.Flags().GetBool("spot")))
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), newClusterStatus(cmd.Context(), c, false))
	},
}

var removeWorkersCmd = &cobra.Command{
	Use:   "remove-workers NAME COUNT",
	Short: "Remove workers from a cluster, interruptible ones first",
	Args:  cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := parseCount(args[1])
		if err != nil {
			return err
		}

		c, err := manager.RemoveWorkers(cmd.Context(), args[0], count)
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), newClusterStatus(cmd.Context(), c, false))
	},
}

func parseCount(arg string) (int, error) {
	count, err := strconv.Atoi(arg)
	if err != nil {
		return 0, &cluster.UsageError{Reason: fmt.Sprintf("invalid number of workers '%s'", arg)}
	}
	return count, nil
}

func init() {
	addWorkersCmd.Flags().Bool("spot", false, "run the new workers on interruptible capacity (ec2 only)")
}
