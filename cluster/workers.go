package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// AddWorkers grows a running cluster by n workers. The new workers receive the key pair
// already installed on the leader, and the leader is reconfigured to include them.
// On failure the new workers are terminated, the existing nodes are left untouched.
func (m *Manager) AddWorkers(ctx context.Context, name string, n int, spot bool) (c *Cluster, err error) {
	defer m.operation("add-workers", name)(&err)

	if n < 1 {
		return nil, usageErrorf("the number of workers to add must be at least 1, got %d", n)
	}

	c, err = m.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := requireState(c, "add workers to", StateRunning); err != nil {
		return nil, err
	}
	if c.Leader == nil {
		return nil, fmt.Errorf("cluster '%s' has no leader", name)
	}

	leader, err := m.config.Dialer.Dial(ctx, c.Leader.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to add workers to cluster '%s': %w", name, err)
	}
	keys, err := fetchKeys(ctx, leader)
	if err != nil {
		leader.Close()
		return nil, fmt.Errorf("failed to add workers to cluster '%s': %w", name, err)
	}
	svcs, err := m.loadServices(ctx, leader)
	leader.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to add workers to cluster '%s': %w", name, err)
	}

	var created []Node
	defer func() {
		if err == nil {
			return
		}
		if cleanupErr := m.cleanup(ctx, name, created); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
		}
		err = fmt.Errorf("failed to add workers to cluster '%s': %w", name, err)
	}()

	created, err = m.createNodes(ctx, NodeSpec{ClusterName: name, Role: RoleWorker, Interruptible: spot}, n)
	if err != nil {
		return nil, err
	}
	if err := m.config.Provider.WaitForState(ctx, created, StateRunning); err != nil {
		return nil, err
	}

	c, err = m.refresh(ctx, name, append(nodeIDs(c.Nodes()), nodeIDs(created)...), StateRunning)
	if err != nil {
		return nil, err
	}

	c.Services = svcs

	newIDs := nodeIDs(created)
	fresh := lo.Filter(c.Workers, func(w Node, _ int) bool { return lo.Contains(newIDs, w.ID) })

	p := &provisioner{m: m, cluster: c, keys: keys}
	if _, err := p.provisionAll(ctx, fresh); err != nil {
		return nil, err
	}

	if err := m.reconfigureLeader(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveWorkers terminates n workers, interruptible ones first, and reconfigures the
// leader if the cluster is running.
func (m *Manager) RemoveWorkers(ctx context.Context, name string, n int) (c *Cluster, err error) {
	defer m.operation("remove-workers", name)(&err)

	c, err = m.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(c.Workers) {
		return nil, usageErrorf("the number of workers to remove must be between 1 and %d, got %d", len(c.Workers), n)
	}
	if err := requireState(c, "remove workers from", StateRunning, StateStopped); err != nil {
		return nil, err
	}
	running := c.State() == StateRunning

	victims := removalOrder(c.Workers)[:n]
	m.log.Info("Removing workers", "cluster", name, "nodes", nodeIDs(victims))

	if err := m.config.Provider.TerminateNodes(ctx, victims); err != nil {
		return nil, fmt.Errorf("failed to remove workers from cluster '%s': %w", name, err)
	}
	m.emit(EventNodesTerminated{Cluster: name, Nodes: nodeIDs(victims)})

	if err := m.config.Provider.WaitForState(ctx, victims, StateTerminated); err != nil {
		return nil, fmt.Errorf("failed to remove workers from cluster '%s': %w", name, err)
	}

	remaining := lo.Without(nodeIDs(c.Nodes()), nodeIDs(victims)...)
	state := StateStopped
	if running {
		state = StateRunning
	}
	c, err = m.refresh(ctx, name, remaining, state)
	if err != nil {
		return nil, fmt.Errorf("failed to remove workers from cluster '%s': %w", name, err)
	}

	if running {
		if err := m.reconfigureLeader(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to reconfigure leader of cluster '%s': %w", name, err)
		}
	}
	return c, nil
}
