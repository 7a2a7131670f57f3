package cluster

import (
	"context"
	"fmt"
	"os"

	"github.com/gammadia/flotilla/parallel"
	"github.com/gammadia/flotilla/remote"
	"github.com/gammadia/flotilla/services"
)

// CommandResult is the output of a command on one node.
type CommandResult struct {
	Node   string
	Host   string
	Output string
	Err    error
}

func (m *Manager) targets(ctx context.Context, name, operation string, leaderOnly bool) (*Cluster, []Node, error) {
	c, err := m.find(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if err := requireState(c, operation, StateRunning); err != nil {
		return nil, nil, err
	}

	if leaderOnly {
		if c.Leader == nil {
			return nil, nil, fmt.Errorf("cluster '%s' has no leader", name)
		}
		return c, []Node{*c.Leader}, nil
	}
	return c, c.Nodes(), nil
}

// RunCommand runs command on every node, or only on the leader, and returns one result per
// node in cluster order. Results are returned alongside the aggregate error when some nodes fail.
func (m *Manager) RunCommand(ctx context.Context, name, command string, leaderOnly bool) (results []CommandResult, err error) {
	defer m.operation("run-command", name)(&err)

	_, nodes, err := m.targets(ctx, name, "run a command on", leaderOnly)
	if err != nil {
		return nil, err
	}

	results = make([]CommandResult, len(nodes))
	index := make(map[string]int, len(nodes))
	for i, node := range nodes {
		index[node.ID] = i
		results[i] = CommandResult{Node: node.ID, Host: node.Address()}
	}

	err = m.dialAll(ctx, nodes, func(ctx context.Context, node Node, s remote.Session) error {
		output, err := s.Run(ctx, command)
		results[index[node.ID]].Output = output
		results[index[node.ID]].Err = err
		return err
	})
	if err != nil {
		return results, fmt.Errorf("failed to run command on cluster '%s': %w", name, err)
	}
	return results, nil
}

// CopyFile uploads a regular local file into remoteDir on every node, or only on the leader.
func (m *Manager) CopyFile(ctx context.Context, name, localPath, remoteDir string, leaderOnly bool) (err error) {
	defer m.operation("copy-file", name)(&err)

	info, err := os.Stat(localPath)
	if err != nil {
		return usageErrorf("cannot copy '%s': %v", localPath, err)
	}
	if !info.Mode().IsRegular() {
		return usageErrorf("cannot copy '%s': not a regular file", localPath)
	}
	if info.Size() > m.config.MaxCopySize {
		return usageErrorf("cannot copy '%s': %d bytes is above the %d bytes limit", localPath, info.Size(), m.config.MaxCopySize)
	}

	_, nodes, err := m.targets(ctx, name, "copy a file to", leaderOnly)
	if err != nil {
		return err
	}

	err = m.dialAll(ctx, nodes, func(ctx context.Context, _ Node, s remote.Session) error {
		return s.PutFile(ctx, localPath, remoteDir)
	})
	if err != nil {
		return fmt.Errorf("failed to copy '%s' to cluster '%s': %w", localPath, name, err)
	}
	return nil
}

// HealthReport is the outcome of one service health check.
type HealthReport struct {
	services.Health
	Err error
}

// Health queries every service of a running cluster. A failing check is reported, not returned.
func (m *Manager) Health(ctx context.Context, c *Cluster) []HealthReport {
	if c.State() != StateRunning || c.Leader == nil {
		return nil
	}

	svcs := c.Services
	if svcs == nil {
		svcs = m.config.Services
	}

	reports, _ := parallel.Map(ctx, svcs, func(ctx context.Context, service services.Service) (HealthReport, error) {
		health, err := service.HealthCheck(ctx, c.LeaderIP())
		if health.Service == "" {
			health.Service = service.Name()
		}
		return HealthReport{Health: health, Err: err}, nil
	})

	return reports
}
