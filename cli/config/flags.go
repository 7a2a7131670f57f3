package config

import (
	"strings"
	"time"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gammadia/flotilla/cluster"
)

const (
	ConfigFile = "config"
	LogFormat  = "log-format"
	LogLevel   = "log-level"
	LogSource  = "log-source"

	Provider       = "provider"
	OperatorCIDRs  = "operator-cidrs"
	StateTimeout   = "state-timeout"
	JavaVersion    = "java-version"
	RootDir        = "root-dir"
	Concurrency    = "concurrency"
	MaxCopySize    = "max-copy-size"
	PollInterval   = "poll-interval"
	SettleTimeout  = "settle-timeout"
	SettleDelay    = "settle-delay"
	CleanupTimeout = "cleanup-timeout"

	SSHUser           = "ssh-user"
	SSHIdentityFile   = "ssh-identity-file"
	SSHPort           = "ssh-port"
	SSHConnectTimeout = "ssh-connect-timeout"
	SSHAttempts       = "ssh-attempts"

	EC2Region          = "ec2-region"
	EC2Profile         = "ec2-profile"
	EC2AccessKeyID     = "ec2-access-key-id"
	EC2SecretAccessKey = "ec2-secret-access-key"
	EC2AMI             = "ec2-ami"
	EC2InstanceType    = "ec2-instance-type"
	EC2KeyName         = "ec2-key-name"
	EC2VPCID           = "ec2-vpc-id"
	EC2SubnetID        = "ec2-subnet-id"
	EC2InstanceProfile = "ec2-instance-profile"
	EC2RootVolumeSize  = "ec2-root-volume-size"
	EC2SpotPrice       = "ec2-spot-price"

	OpenstackRegion   = "openstack-region"
	OpenstackImage    = "openstack-image"
	OpenstackFlavor   = "openstack-flavor"
	OpenstackNetworks = "openstack-networks"
	OpenstackKeyName  = "openstack-key-name"
)

// Init registers the configuration flags on flags and binds them to v. Every flag can
// also be set through a FLOTILLA_ environment variable or a key of the config file.
func Init(v *viper.Viper, flags *flag.FlagSet) {
	defaults := cluster.DefaultConfig()

	// Flotilla
	flags.String(ConfigFile, "", "config file (default $XDG_CONFIG_HOME/flotilla/config.yaml)")
	flags.String(LogFormat, "text", "log format (json, text)")
	flags.String(LogLevel, "WARN", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.String(Provider, "ec2", "cloud provider to use (ec2, openstack)")
	flags.StringSlice(OperatorCIDRs, nil, "networks allowed to reach the clusters (default: the current public IP)")
	flags.Duration(StateTimeout, 10*time.Minute, "how long to wait for nodes to change state")
	flags.Int(JavaVersion, defaults.JavaVersion, "java version installed on the nodes")
	flags.String(RootDir, defaults.RootDir, "where the root volume is made available on the nodes")
	flags.Int(Concurrency, defaults.Concurrency, "maximum number of simultaneous ssh sessions (0: one per node)")
	flags.Int64(MaxCopySize, defaults.MaxCopySize, "maximum size in bytes of a file sent with copy-file")
	flags.Duration(PollInterval, defaults.PollInterval, "how often to poll the provider")
	flags.Duration(SettleTimeout, defaults.SettleTimeout, "how long to wait for new nodes to appear in listings")
	flags.Duration(SettleDelay, defaults.SettleDelay, "how long to wait between detaching and deleting a security group")
	flags.Duration(CleanupTimeout, defaults.CleanupTimeout, "how long cleanup may take after a failed operation")

	// SSH
	flags.String(SSHUser, "ec2-user", "ssh username used to connect to the nodes")
	flags.String(SSHIdentityFile, "", "private key of the provider key pair")
	flags.Int(SSHPort, 22, "ssh port of the nodes")
	flags.Duration(SSHConnectTimeout, 10*time.Second, "timeout of a single ssh connection attempt")
	flags.Int(SSHAttempts, 36, "ssh connection attempts before a node is considered unreachable")

	// EC2
	flags.String(EC2Region, "", "region to launch clusters in")
	flags.String(EC2Profile, "", "shared configuration profile")
	flags.String(EC2AccessKeyID, "", "static access key id")
	flags.String(EC2SecretAccessKey, "", "static secret access key")
	flags.String(EC2AMI, "", "machine image of the nodes")
	flags.String(EC2InstanceType, "m5.large", "instance type of the nodes")
	flags.String(EC2KeyName, "", "key pair injected into the nodes")
	flags.String(EC2VPCID, "", "vpc to launch into (default: the default vpc)")
	flags.String(EC2SubnetID, "", "subnet to launch into")
	flags.String(EC2InstanceProfile, "", "iam instance profile of the nodes")
	flags.Int32(EC2RootVolumeSize, 0, "root volume size in GiB (0: image default)")
	flags.String(EC2SpotPrice, "", "maximum hourly price of spot workers (default: on-demand price)")

	// Openstack
	flags.String(OpenstackRegion, "", "region to launch clusters in (default: $OS_REGION_NAME)")
	flags.String(OpenstackImage, "", "image to use for the nodes")
	flags.String(OpenstackFlavor, "", "flavor to use for the nodes")
	flags.StringSlice(OpenstackNetworks, nil, "networks attached to the nodes")
	flags.String(OpenstackKeyName, "", "key pair injected into the nodes")

	v.SetEnvPrefix("flotilla")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(v.BindPFlags(flags))
}
