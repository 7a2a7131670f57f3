package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/gammadia/flotilla/remote"
)

// Service installs and runs one distributed component on every node of a cluster.
// Implementations hold no per-node state: the same value is used against every node.
type Service interface {
	Name() string
	// Install downloads or builds the service binaries. Identical on leader and workers.
	Install(ctx context.Context, s remote.Session, c ClusterInfo) error
	// Configure writes the service configuration. Identical on leader and workers.
	Configure(ctx context.Context, s remote.Session, c ClusterInfo) error
	// ConfigureMaster starts the service daemons from the leader and waits until the
	// service reports itself ready. Only called once every node has been configured.
	ConfigureMaster(ctx context.Context, s remote.Session, c ClusterInfo) error
	// HealthCheck queries the service status endpoint on the leader.
	HealthCheck(ctx context.Context, leaderAddr string) (Health, error)
	// Manifest records the settings the service was built with, see Build.
	Manifest() Manifest
}

// StorageDirs is the disk layout of a node, as reported by the storage helper.
type StorageDirs struct {
	Root       string   `json:"root" yaml:"root"`
	Ephemeral  []string `json:"ephemeral" yaml:"ephemeral"`
	Persistent []string `json:"persistent,omitempty" yaml:"persistent,omitempty"`
}

// ClusterInfo is what services know about the cluster they are configured for.
type ClusterInfo struct {
	Name            string
	LeaderPrivateIP string
	LeaderPublicIP  string
	WorkerIPs       []string
	Storage         StorageDirs
	JavaVersion     int
}

// Mapping returns the placeholders shared by every service template.
func (c ClusterInfo) Mapping() map[string]string {
	return map[string]string{
		"cluster_name":    c.Name,
		"leader_host":     c.LeaderPrivateIP,
		"leader_ip":       c.LeaderPublicIP,
		"worker_hosts":    strings.Join(c.WorkerIPs, "\n"),
		"worker_count":    fmt.Sprint(len(c.WorkerIPs)),
		"root_dir":        c.Storage.Root,
		"ephemeral_dirs":  strings.Join(c.Storage.Ephemeral, ","),
		"persistent_dirs": strings.Join(c.Storage.Persistent, ","),
		"java_version":    fmt.Sprint(c.JavaVersion),
	}
}

// dataDirs lists directories to spread service data over: ephemeral volumes if the
// node has some, the root volume otherwise.
func (c ClusterInfo) dataDirs(suffix string) string {
	dirs := c.Storage.Ephemeral
	if len(dirs) == 0 {
		dirs = []string{c.Storage.Root}
	}

	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		out = append(out, strings.TrimRight(dir, "/")+"/"+suffix)
	}
	return strings.Join(out, ",")
}

// Health is the outcome of a service health check.
type Health struct {
	Service string
	URL     string
	Healthy bool
	Details map[string]string
}

// InstallationError is returned when a service could not be installed on a node.
type InstallationError struct {
	Service string
	Host    string
	Err     error
}

func (e *InstallationError) Error() string {
	return fmt.Sprintf("failed to install %s on '%s': %v", e.Service, e.Host, e.Err)
}

func (e *InstallationError) Unwrap() error {
	return e.Err
}

// Source is where a service comes from: a released version or a source commit, never both.
type Source struct {
	Version        string `yaml:"version,omitempty"`
	DownloadSource string `yaml:"download-source,omitempty"`
	GitCommit      string `yaml:"git-commit,omitempty"`
	GitRepository  string `yaml:"git-repository,omitempty"`
}

func (src Source) validate(name string, allowGit bool) error {
	switch {
	case src.Version != "" && src.GitCommit != "":
		return fmt.Errorf("%s: version and git-commit are mutually exclusive", name)
	case src.GitCommit != "" && !allowGit:
		return fmt.Errorf("%s: cannot be built from source", name)
	case src.GitCommit != "" && src.GitRepository == "":
		return fmt.Errorf("%s: git-commit requires git-repository", name)
	case src.Version == "" && src.GitCommit == "":
		return fmt.Errorf("%s: a version is required", name)
	}
	return nil
}

// downloadURL expands the {v} placeholder of the download source.
func (src Source) downloadURL() string {
	return Render(src.DownloadSource, map[string]string{"v": src.Version})
}
