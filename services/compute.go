package services

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/siderolabs/go-retry/retry"

	"github.com/gammadia/flotilla/remote"
)

const (
	computeHome       = "spark"
	computeConfDir    = "spark/conf"
	defaultComputeURL = "https://archive.apache.org/dist/spark/spark-{v}/spark-{v}-bin-hadoop3.tgz"
)

// Compute is a Spark standalone deployment: a master on the leader and a worker daemon
// on every worker node.
type Compute struct {
	Source
	SHA512            string
	WebPort           int
	ExecutorInstances int
	// BuildCommands run inside the checkout when building from a git commit
	BuildCommands []string
	Readiness     Readiness

	DownloadAttempts int
}

// Compute implements Service
var _ Service = (*Compute)(nil)

func NewCompute(src Source) (*Compute, error) {
	if err := src.validate("compute", true); err != nil {
		return nil, err
	}
	if src.DownloadSource == "" {
		src.DownloadSource = defaultComputeURL
	}

	return &Compute{
		Source:  src,
		WebPort: 8080,
		BuildCommands: []string{
			"./dev/make-distribution.sh -Phadoop-3 -DskipTests",
			"cp -r dist/* .",
		},
		DownloadAttempts: 3,
	}, nil
}

func (*Compute) Name() string {
	return "compute"
}

func (cp *Compute) mapping(c ClusterInfo) map[string]string {
	executors := cp.ExecutorInstances
	if executors <= 0 {
		executors = max(len(c.WorkerIPs), 1)
	}

	version := cp.Version
	if version == "" {
		version = cp.GitCommit
	}

	return merge(c.Mapping(), map[string]string{
		"compute_version":            version,
		"compute_local_dirs":         c.dataDirs("spark/scratch"),
		"compute_executor_instances": strconv.Itoa(executors),
	})
}

func (cp *Compute) Install(ctx context.Context, s remote.Session, _ ClusterInfo) error {
	var err error
	if cp.GitCommit != "" {
		_, err = runScript(ctx, s, "build-from-source", buildParams{
			Repository:    cp.GitRepository,
			Commit:        cp.GitCommit,
			Destination:   computeHome,
			BuildCommands: cp.BuildCommands,
		})
	} else {
		_, err = runScript(ctx, s, "download-package", downloadParams{
			URL:         cp.downloadURL(),
			Destination: computeHome,
			SHA512:      cp.SHA512,
			Attempts:    max(cp.DownloadAttempts, 1),
			RetryDelay:  5,
		})
	}
	if err != nil {
		return &InstallationError{Service: cp.Name(), Host: s.Host(), Err: err}
	}
	return nil
}

func (cp *Compute) Configure(ctx context.Context, s remote.Session, c ClusterInfo) error {
	err := writeConfig(ctx, s, "compute", computeConfDir, cp.mapping(c),
		"spark-env.sh", "spark-defaults.conf", "workers")
	if err != nil {
		return fmt.Errorf("failed to configure compute: %w", err)
	}
	return nil
}

type computeStatus struct {
	Status       string `json:"status"`
	AliveWorkers int    `json:"aliveworkers"`
	Cores        int    `json:"cores"`
	CoresUsed    int    `json:"coresused"`
	Memory       int64  `json:"memory"`
	MemoryUsed   int64  `json:"memoryused"`
	ActiveApps   []any  `json:"activeapps"`
}

func (cp *Compute) ConfigureMaster(ctx context.Context, s remote.Session, c ClusterInfo) error {
	if _, err := s.Run(ctx, "./spark/sbin/stop-all.sh || true"); err != nil {
		return fmt.Errorf("failed to stop compute: %w", err)
	}
	if _, err := s.Run(ctx, "./spark/sbin/start-all.sh"); err != nil {
		return fmt.Errorf("failed to start compute: %w", err)
	}

	url := cp.webURL(c.LeaderPublicIP) + "/json/"
	return waitUntil(ctx, cp.Readiness, "compute master", func(ctx context.Context) error {
		var status computeStatus
		if err := getJSON(ctx, url, &status); err != nil {
			return retry.ExpectedError(err)
		}
		if status.Status != "ALIVE" {
			return retry.ExpectedErrorf("master status is %s", status.Status)
		}
		if status.AliveWorkers < len(c.WorkerIPs) {
			return retry.ExpectedErrorf("%d of %d workers registered", status.AliveWorkers, len(c.WorkerIPs))
		}
		return nil
	})
}

func (cp *Compute) webURL(host string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cp.WebPort))
}

func (cp *Compute) HealthCheck(ctx context.Context, leaderAddr string) (Health, error) {
	health := Health{Service: cp.Name(), URL: cp.webURL(leaderAddr)}

	var status computeStatus
	if err := getJSON(ctx, cp.webURL(leaderAddr)+"/json/", &status); err != nil {
		return health, fmt.Errorf("compute health check failed: %w", err)
	}

	health.Healthy = status.Status == "ALIVE"
	health.Details = map[string]string{
		"status":      status.Status,
		"workers":     strconv.Itoa(status.AliveWorkers),
		"cores":       fmt.Sprintf("%d/%d", status.CoresUsed, status.Cores),
		"memory":      fmt.Sprintf("%s/%s", formatBytes(status.MemoryUsed<<20), formatBytes(status.Memory<<20)),
		"active-apps": strconv.Itoa(len(status.ActiveApps)),
	}
	return health, nil
}
