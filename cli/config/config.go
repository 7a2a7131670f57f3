package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/provider/ec2"
	"github.com/gammadia/flotilla/provider/openstack"
	"github.com/gammadia/flotilla/services"
)

type Config struct {
	Provider string
	SSH      SSH
	// Cluster carries the manager settings, its provider and dialer are left to the caller
	Cluster   cluster.Config
	EC2       ec2.Config
	OpenStack openstack.Config
	Services  []services.Service
}

type SSH struct {
	User           string
	IdentityFile   string
	Port           int
	ConnectTimeout time.Duration
	Attempts       int
}

// Services is the services section of the config file. Services left out are not installed.
type Services struct {
	Storage *StorageService `yaml:"storage"`
	Compute *ComputeService `yaml:"compute"`
}

type StorageService struct {
	services.Source `yaml:",inline"`
	SHA512          string `yaml:"sha512"`
	Replication     int    `yaml:"replication"`
}

type ComputeService struct {
	services.Source   `yaml:",inline"`
	SHA512            string   `yaml:"sha512"`
	ExecutorInstances int      `yaml:"executor-instances"`
	BuildCommands     []string `yaml:"build-commands"`
}

type file struct {
	Services Services `yaml:"services"`
}

// DefaultPath is where the config file is looked up when --config is not given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "flotilla", "config.yaml")
}

// Load reads the config file into v, then builds and validates the typed configuration.
// A missing file is only an error when it was asked for explicitly.
func Load(v *viper.Viper) (Config, error) {
	var f file

	path, explicit := v.GetString(ConfigFile), true
	if path == "" {
		path, explicit = DefaultPath(), false
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			v.SetConfigType("yaml")
			if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file '%s': %w", path, err)
			}
			if err := yaml.Unmarshal(data, &f); err != nil {
				return Config{}, fmt.Errorf("failed to parse services of config file '%s': %w", path, err)
			}
		}
	}

	svcs, err := f.Services.Build()
	if err != nil {
		return Config{}, err
	}

	config := Config{
		Provider: v.GetString(Provider),
		SSH: SSH{
			User:           v.GetString(SSHUser),
			IdentityFile:   v.GetString(SSHIdentityFile),
			Port:           v.GetInt(SSHPort),
			ConnectTimeout: v.GetDuration(SSHConnectTimeout),
			Attempts:       v.GetInt(SSHAttempts),
		},
		Cluster:  clusterConfig(v),
		Services: svcs,
	}
	config.Cluster.Services = svcs

	ports := webPorts(svcs)
	switch config.Provider {
	case "ec2":
		config.EC2 = ec2.Config{
			Region:          v.GetString(EC2Region),
			Profile:         v.GetString(EC2Profile),
			AccessKeyID:     v.GetString(EC2AccessKeyID),
			SecretAccessKey: v.GetString(EC2SecretAccessKey),
			AMI:             v.GetString(EC2AMI),
			InstanceType:    v.GetString(EC2InstanceType),
			KeyName:         v.GetString(EC2KeyName),
			VPCID:           v.GetString(EC2VPCID),
			SubnetID:        v.GetString(EC2SubnetID),
			InstanceProfile: v.GetString(EC2InstanceProfile),
			RootVolumeSize:  v.GetInt32(EC2RootVolumeSize),
			SpotPrice:       v.GetString(EC2SpotPrice),
			OperatorCIDRs:   v.GetStringSlice(OperatorCIDRs),
			WebPorts:        ports,
		}
		config.EC2.State = v.GetDuration(StateTimeout)
		config.EC2.PollInterval = v.GetDuration(PollInterval)
	case "openstack":
		config.OpenStack = openstack.Config{
			Region:        v.GetString(OpenstackRegion),
			Image:         v.GetString(OpenstackImage),
			Flavor:        v.GetString(OpenstackFlavor),
			Networks:      v.GetStringSlice(OpenstackNetworks),
			KeyName:       v.GetString(OpenstackKeyName),
			OperatorCIDRs: v.GetStringSlice(OperatorCIDRs),
			WebPorts:      ports,
		}
		config.OpenStack.State = v.GetDuration(StateTimeout)
		config.OpenStack.PollInterval = v.GetDuration(PollInterval)
	}

	if err := Validate(config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func clusterConfig(v *viper.Viper) cluster.Config {
	config := cluster.DefaultConfig()
	config.JavaVersion = v.GetInt(JavaVersion)
	config.RootDir = v.GetString(RootDir)
	config.Concurrency = v.GetInt(Concurrency)
	config.MaxCopySize = v.GetInt64(MaxCopySize)
	config.PollInterval = v.GetDuration(PollInterval)
	config.SettleTimeout = v.GetDuration(SettleTimeout)
	config.SettleDelay = v.GetDuration(SettleDelay)
	config.CleanupTimeout = v.GetDuration(CleanupTimeout)
	return config
}

// Validate checks what can be checked before talking to the provider.
func Validate(config Config) error {
	switch config.Provider {
	case "ec2":
		if err := ec2.Validate(config.EC2); err != nil {
			return err
		}
	case "openstack":
		if err := openstack.Validate(config.OpenStack); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown provider '%s'", config.Provider)
	}

	if config.SSH.User == "" {
		return fmt.Errorf("ssh-user is required")
	}
	if config.SSH.IdentityFile == "" {
		return fmt.Errorf("ssh-identity-file is required")
	}
	if config.SSH.Port <= 0 || config.SSH.Port > 65535 {
		return fmt.Errorf("ssh-port must be between 1 and 65535")
	}
	if config.SSH.Attempts < 1 {
		return fmt.Errorf("ssh-attempts must be at least 1")
	}
	return nil
}

// Build creates the configured services, storage first so that compute can rely on it.
func (s Services) Build() ([]services.Service, error) {
	var manifests []services.Manifest
	if s.Storage != nil {
		manifests = append(manifests, services.Manifest{
			Name:        "storage",
			Source:      s.Storage.Source,
			SHA512:      s.Storage.SHA512,
			Replication: s.Storage.Replication,
		})
	}
	if s.Compute != nil {
		manifests = append(manifests, services.Manifest{
			Name:              "compute",
			Source:            s.Compute.Source,
			SHA512:            s.Compute.SHA512,
			ExecutorInstances: s.Compute.ExecutorInstances,
			BuildCommands:     s.Compute.BuildCommands,
		})
	}
	return services.Build(manifests)
}

func webPorts(svcs []services.Service) []int {
	var ports []int
	for _, svc := range svcs {
		switch svc := svc.(type) {
		case *services.Storage:
			ports = append(ports, svc.WebPort)
		case *services.Compute:
			ports = append(ports, svc.WebPort)
		}
	}
	return ports
}
