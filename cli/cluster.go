package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/gammadia/flotilla/cli/ui"
	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/namegen"
)

var launchCmd = &cobra.Command{
	Use:   "launch [NAME]",
	Short: "Launch a new cluster",
	Long:  "Launch a new cluster of one leader and the requested number of workers. A random name is picked when none is given.",
	Args:  cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		name := namegen.ClusterName()
		if len(args) == 1 {
			name = args[0]
		}
		if err := validateName(name); err != nil {
			return err
		}

		c, err := manager.Launch(cmd.Context(), cluster.LaunchOptions{
			Name:        name,
			Workers:     lo.Must(cmd.Flags().GetInt("workers")),
			SpotWorkers: lo.Must(cmd.Flags().GetBool("spot-workers")),
		})
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), newClusterStatus(cmd.Context(), c, true))
	},
}

// validateName rejects names that cannot be used in tags and security group names.
func validateName(name string) error {
	if name == "" || namegen.Sanitize(name) != name {
		return &cluster.UsageError{Reason: fmt.Sprintf("invalid cluster name '%s': use lowercase letters, digits and single dashes", name)}
	}
	return nil
}

var describeCmd = &cobra.Command{
	Use:   "describe [NAME]",
	Short: "Describe one or all clusters",
	Args:  cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			c, err := manager.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), newClusterStatus(cmd.Context(), c, lo.Must(cmd.Flags().GetBool("health"))))
		}

		clusters, err := manager.DescribeAll(cmd.Context())
		if err != nil {
			return err
		}
		if len(clusters) == 0 {
			cmd.PrintErrln(color.HiYellowString("No clusters found"))
			return nil
		}
		return printYAML(cmd.OutOrStdout(), lo.Map(clusters, func(c *cluster.Cluster, _ int) clusterStatus {
			return newClusterStatus(cmd.Context(), c, false)
		}))
	},
}

var startCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start a stopped cluster",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := manager.Start(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), newClusterStatus(cmd.Context(), c, false))
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a running cluster",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return manager.Stop(cmd.Context(), args[0])
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy NAME",
	Short: "Terminate every node of a cluster and delete its security group",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if !lo.Must(cmd.Flags().GetBool("assume-yes")) {
			c, err := manager.Describe(cmd.Context(), name)
			if err != nil {
				return err
			}
			if err := printYAML(cmd.ErrOrStderr(), c.Status()); err != nil {
				return err
			}

			question := fmt.Sprintf("Destroy cluster '%s' and its %d node(s)?", name, len(c.Nodes()))
			ok, err := ui.Confirm(os.Stdin, cmd.ErrOrStderr(), question)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cluster '%s' was not destroyed, confirm or use --assume-yes", name)
			}
		}

		return manager.Destroy(cmd.Context(), name)
	},
}

func init() {
	launchCmd.Flags().Int("workers", 1, "number of workers")
	launchCmd.Flags().Bool("spot-workers", false, "run workers on interruptible capacity (ec2 only)")

	describeCmd.Flags().Bool("health", true, "query the services of a running cluster")

	destroyCmd.Flags().BoolP("assume-yes", "y", false, "do not ask for confirmation")
}
