package ec2

import (
	"fmt"
	"log/slog"

	"github.com/gammadia/flotilla/provider/internal"
)

type Config struct {
	Logger *slog.Logger `json:"-"`

	Region  string `json:"region"`
	Profile string `json:"profile"`
	// Static credentials, the default credential chain is used when empty
	AccessKeyID     string `json:"access-key-id"`
	SecretAccessKey string `json:"-"`

	AMI             string `json:"ami"`
	InstanceType    string `json:"instance-type"`
	KeyName         string `json:"key-name"`
	VPCID           string `json:"vpc-id"`
	SubnetID        string `json:"subnet-id"`
	InstanceProfile string `json:"instance-profile"`
	RootVolumeSize  int32  `json:"root-volume-size"`
	// SpotPrice caps the hourly price of spot workers, the on-demand price when empty
	SpotPrice string `json:"spot-price"`

	OperatorCIDRs []string `json:"operator-cidrs"`
	WebPorts      []int    `json:"web-ports"`

	internal.Timeouts
}

func Validate(config Config) error {
	if config.Region == "" {
		return fmt.Errorf("ec2: region is required")
	}
	if config.AMI == "" {
		return fmt.Errorf("ec2: ami is required")
	}
	if config.InstanceType == "" {
		return fmt.Errorf("ec2: instance-type is required")
	}
	if config.KeyName == "" {
		return fmt.Errorf("ec2: key-name is required")
	}
	if (config.AccessKeyID == "") != (config.SecretAccessKey == "") {
		return fmt.Errorf("ec2: access-key-id and secret-access-key must be set together")
	}
	if config.RootVolumeSize < 0 {
		return fmt.Errorf("ec2: root-volume-size must not be negative")
	}
	if config.State <= 0 || config.PollInterval <= 0 {
		return fmt.Errorf("ec2: state-timeout and poll-interval must be greater than 0")
	}
	return nil
}
