package openstack

import (
	"fmt"
	"log/slog"

	"github.com/gammadia/flotilla/provider/internal"
)

type Config struct {
	Logger *slog.Logger `json:"-"`

	// Region defaults to $OS_REGION_NAME
	Region   string   `json:"region"`
	Image    string   `json:"image"`
	Flavor   string   `json:"flavor"`
	Networks []string `json:"networks"`
	// KeyName is the operator key pair injected into every server
	KeyName string `json:"key-name"`

	OperatorCIDRs []string `json:"operator-cidrs"`
	WebPorts      []int    `json:"web-ports"`

	internal.Timeouts
}

func Validate(config Config) error {
	if config.Image == "" {
		return fmt.Errorf("openstack: image is required")
	}
	if config.Flavor == "" {
		return fmt.Errorf("openstack: flavor is required")
	}
	if config.KeyName == "" {
		return fmt.Errorf("openstack: key-name is required")
	}
	if config.State <= 0 || config.PollInterval <= 0 {
		return fmt.Errorf("openstack: state-timeout and poll-interval must be greater than 0")
	}
	return nil
}
