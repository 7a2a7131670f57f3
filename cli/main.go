package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh"

	"github.com/gammadia/flotilla/cli/config"
	"github.com/gammadia/flotilla/cli/log"
	"github.com/gammadia/flotilla/cli/ui"
	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/provider/ec2"
	"github.com/gammadia/flotilla/provider/openstack"
	"github.com/gammadia/flotilla/remote"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var settings config.Config
var manager *cluster.Manager

var flotillaCmd = &cobra.Command{
	Use:   "flotilla",
	Short: "Flotilla launches and manages short-lived compute clusters.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		// Logging settings may come from the config file
		if settings, err = config.Load(viper.GetViper()); err != nil {
			return err
		}
		if err := log.Init(viper.GetViper(), cmd.ErrOrStderr()); err != nil {
			return err
		}

		manager, err = newManager(cmd.Context(), settings, ui.NewProgress(cmd.ErrOrStderr()))
		return err
	},
}

func newManager(ctx context.Context, settings config.Config, progress *ui.Progress) (*cluster.Manager, error) {
	signer, err := readIdentity(settings.SSH.IdentityFile)
	if err != nil {
		return nil, err
	}

	var provider cluster.Provider
	switch settings.Provider {
	case "ec2":
		settings.EC2.Logger = log.With("ec2")
		if provider, err = ec2.New(ctx, settings.EC2); err != nil {
			return nil, fmt.Errorf("failed to initialize ec2 provider: %w", err)
		}
	case "openstack":
		settings.OpenStack.Logger = log.With("openstack")
		if provider, err = openstack.New(settings.OpenStack); err != nil {
			return nil, fmt.Errorf("failed to initialize openstack provider: %w", err)
		}
	}

	managerConfig := settings.Cluster
	managerConfig.Provider = provider
	managerConfig.Logger = log.With("cluster")
	managerConfig.OnEvent = progress.Handle
	managerConfig.Dialer = &remote.Dialer{
		User:   settings.SSH.User,
		Port:   settings.SSH.Port,
		Signer: signer,
		Policy: remote.RetryPolicy{
			MaxAttempts: settings.SSH.Attempts,
			Interval:    remote.DefaultRetryPolicy().Interval,
		},
		Timeout:   settings.SSH.ConnectTimeout,
		KeepAlive: 30 * time.Second,
		Logger:    log.With("remote"),
	}

	return cluster.NewManager(managerConfig)
}

func readIdentity(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh identity: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh identity '%s': %w", path, err)
	}
	return signer, nil
}

func init() {
	flotillaCmd.AddCommand(addWorkersCmd)
	flotillaCmd.AddCommand(completionCmd)
	flotillaCmd.AddCommand(copyFileCmd)
	flotillaCmd.AddCommand(describeCmd)
	flotillaCmd.AddCommand(destroyCmd)
	flotillaCmd.AddCommand(launchCmd)
	flotillaCmd.AddCommand(loginCmd)
	flotillaCmd.AddCommand(removeWorkersCmd)
	flotillaCmd.AddCommand(runCommandCmd)
	flotillaCmd.AddCommand(startCmd)
	flotillaCmd.AddCommand(stopCmd)
	flotillaCmd.AddCommand(versionCmd)

	config.Init(viper.GetViper(), flotillaCmd.PersistentFlags())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flotillaCmd.SetOut(os.Stdout)
	if err := flotillaCmd.ExecuteContext(ctx); err != nil {
		var nothingToDo *cluster.NothingToDoError
		if errors.As(err, &nothingToDo) {
			lo.Must(fmt.Fprintln(os.Stderr, color.HiYellowString(nothingToDo.Error())))
			return
		}

		lo.Must(fmt.Fprintln(os.Stderr, color.HiRedString(fmt.Sprint(err))))
		os.Exit(1)
	}
}
