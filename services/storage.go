package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/alessio/shellescape"
	"github.com/siderolabs/go-retry/retry"

	"github.com/gammadia/flotilla/remote"
)

const (
	storageHome       = "hadoop"
	storageConfDir    = "hadoop/etc/hadoop"
	defaultStorageURL = "https://archive.apache.org/dist/hadoop/common/hadoop-{v}/hadoop-{v}.tar.gz"
)

// Storage is an HDFS deployment: a name node on the leader and a data node on every worker.
type Storage struct {
	Source
	SHA512      string
	Replication int
	WebPort     int
	Readiness   Readiness

	DownloadAttempts int
}

// Storage implements Service
var _ Service = (*Storage)(nil)

func NewStorage(src Source) (*Storage, error) {
	if err := src.validate("storage", false); err != nil {
		return nil, err
	}
	if src.DownloadSource == "" {
		src.DownloadSource = defaultStorageURL
	}

	return &Storage{
		Source:           src,
		Replication:      3,
		WebPort:          9870,
		DownloadAttempts: 3,
	}, nil
}

func (*Storage) Name() string {
	return "storage"
}

func (st *Storage) mapping(c ClusterInfo) map[string]string {
	return merge(c.Mapping(), map[string]string{
		"storage_version":     st.Version,
		"storage_name_dir":    c.Storage.Root + "/hadoop/dfs/name",
		"storage_data_dirs":   c.dataDirs("hadoop/dfs/data"),
		"storage_replication": strconv.Itoa(min(st.Replication, max(len(c.WorkerIPs), 1))),
		"storage_web_port":    strconv.Itoa(st.WebPort),
	})
}

func (st *Storage) Install(ctx context.Context, s remote.Session, _ ClusterInfo) error {
	_, err := runScript(ctx, s, "download-package", downloadParams{
		URL:         st.downloadURL(),
		Destination: storageHome,
		SHA512:      st.SHA512,
		Attempts:    max(st.DownloadAttempts, 1),
		RetryDelay:  5,
	})
	if err != nil {
		return &InstallationError{Service: st.Name(), Host: s.Host(), Err: err}
	}
	return nil
}

func (st *Storage) Configure(ctx context.Context, s remote.Session, c ClusterInfo) error {
	err := writeConfig(ctx, s, "storage", storageConfDir, st.mapping(c),
		"core-site.xml", "hdfs-site.xml", "workers", "hadoop-env.sh")
	if err != nil {
		return fmt.Errorf("failed to configure storage: %w", err)
	}
	return nil
}

func (st *Storage) ConfigureMaster(ctx context.Context, s remote.Session, c ClusterInfo) error {
	nameDir := st.mapping(c)["storage_name_dir"]

	// Reconfiguring a live leader restarts its daemons
	if _, err := s.Run(ctx, "./hadoop/sbin/stop-dfs.sh || true"); err != nil {
		return fmt.Errorf("failed to stop storage: %w", err)
	}

	// Format once: a restarted cluster keeps its name node metadata on the root volume
	command := fmt.Sprintf(
		"if [ ! -d %s/current ]; then ./hadoop/bin/hdfs namenode -format -nonInteractive; fi && ./hadoop/sbin/start-dfs.sh",
		shellescape.Quote(nameDir),
	)
	if _, err := s.Run(ctx, command); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}

	url := st.webURL(c.LeaderPublicIP) + "/"
	return waitUntil(ctx, st.Readiness, "storage name node", func(ctx context.Context) error {
		if err := getJSON(ctx, url, nil); err != nil {
			return retry.ExpectedError(err)
		}
		return nil
	})
}

func (st *Storage) webURL(host string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(st.WebPort))
}

type nameNodeState struct {
	Beans []struct {
		NumLiveDataNodes  int   `json:"NumLiveDataNodes"`
		NumDeadDataNodes  int   `json:"NumDeadDataNodes"`
		CapacityTotal     int64 `json:"CapacityTotal"`
		CapacityRemaining int64 `json:"CapacityRemaining"`
	} `json:"beans"`
}

func (st *Storage) HealthCheck(ctx context.Context, leaderAddr string) (Health, error) {
	url := st.webURL(leaderAddr) + "/jmx?qry=Hadoop:service=NameNode,name=FSNamesystemState"
	health := Health{Service: st.Name(), URL: st.webURL(leaderAddr)}

	var state nameNodeState
	if err := getJSON(ctx, url, &state); err != nil {
		return health, fmt.Errorf("storage health check failed: %w", err)
	}
	if len(state.Beans) == 0 {
		return health, errors.New("storage health check failed: name node reported no state")
	}

	bean := state.Beans[0]
	health.Healthy = bean.NumDeadDataNodes == 0 && bean.NumLiveDataNodes > 0
	health.Details = map[string]string{
		"live-nodes":         strconv.Itoa(bean.NumLiveDataNodes),
		"dead-nodes":         strconv.Itoa(bean.NumDeadDataNodes),
		"capacity-total":     formatBytes(bean.CapacityTotal),
		"capacity-remaining": formatBytes(bean.CapacityRemaining),
	}
	return health, nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
