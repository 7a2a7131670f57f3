package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gammadia/flotilla/cluster"
)

var loginCmd = &cobra.Command{
	Use:   "login NAME",
	Short: "Open an interactive ssh session on the leader of a running cluster",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := manager.Describe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if state := c.State(); state != cluster.StateRunning {
			return &cluster.InvalidStateError{Cluster: c.Name, Operation: "log into", State: state, Allowed: []cluster.State{cluster.StateRunning}}
		}

		ssh := exec.CommandContext(cmd.Context(), "ssh", loginArgs(c.LeaderIP())...)
		ssh.Stdin, ssh.Stdout, ssh.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := ssh.Run(); err != nil {
			return fmt.Errorf("ssh session to the leader of cluster '%s' failed: %w", c.Name, err)
		}
		return nil
	},
}

func loginArgs(host string) []string {
	return []string{
		"-i", settings.SSH.IdentityFile,
		"-p", strconv.Itoa(settings.SSH.Port),
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		fmt.Sprintf("%s@%s", settings.SSH.User, host),
	}
}
