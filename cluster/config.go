package cluster

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gammadia/flotilla/services"
)

const DefaultMaxCopySize int64 = 10 << 20

type Config struct {
	Provider Provider           `json:"-"`
	Dialer   Dialer             `json:"-"`
	Services []services.Service `json:"-"`
	// BuildServices turns the manifest recorded on a leader back into services
	BuildServices func([]services.Manifest) ([]services.Service, error) `json:"-"`
	Logger   *slog.Logger       `json:"-"`
	// OnEvent is called from several goroutines at once
	OnEvent func(Event) `json:"-"`

	JavaVersion int    `json:"java-version"`
	RootDir     string `json:"root-dir"`

	// Concurrency caps simultaneous remote sessions, zero means one per node
	Concurrency int   `json:"concurrency"`
	MaxCopySize int64 `json:"max-copy-size"`

	PollInterval time.Duration `json:"poll-interval"`
	// SettleTimeout bounds how long freshly created nodes may stay invisible in listings
	SettleTimeout time.Duration `json:"settle-timeout"`
	// SettleDelay separates security group detachment from deletion
	SettleDelay    time.Duration `json:"settle-delay"`
	CleanupTimeout time.Duration `json:"cleanup-timeout"`
}

func DefaultConfig() Config {
	return Config{
		Logger:         slog.Default(),
		BuildServices:  services.Build,
		JavaVersion:    11,
		RootDir:        services.DefaultRootDir,
		MaxCopySize:    DefaultMaxCopySize,
		PollInterval:   5 * time.Second,
		SettleTimeout:  2 * time.Minute,
		SettleDelay:    5 * time.Second,
		CleanupTimeout: 5 * time.Minute,
	}
}

func Validate(config Config) error {
	if config.Provider == nil {
		return fmt.Errorf("a provider is required")
	}
	if config.Dialer == nil {
		return fmt.Errorf("a dialer is required")
	}
	if config.JavaVersion < 8 {
		return fmt.Errorf("java-version must be 8 or greater")
	}
	if config.RootDir == "" {
		return fmt.Errorf("root-dir must not be empty")
	}
	if config.MaxCopySize <= 0 {
		return fmt.Errorf("max-copy-size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be greater than 0")
	}
	if config.SettleTimeout <= 0 {
		return fmt.Errorf("settle-timeout must be greater than 0")
	}
	if config.CleanupTimeout <= 0 {
		return fmt.Errorf("cleanup-timeout must be greater than 0")
	}
	if config.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}

	seen := map[string]bool{}
	for _, service := range config.Services {
		if seen[service.Name()] {
			return fmt.Errorf("service '%s' is configured twice", service.Name())
		}
		seen[service.Name()] = true
	}

	return nil
}
