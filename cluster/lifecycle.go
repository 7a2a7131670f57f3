package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Describe returns the cluster. The services of a running cluster are read from its
// leader, a leader that cannot be reached leaves them unknown.
func (m *Manager) Describe(ctx context.Context, name string) (*Cluster, error) {
	c, err := m.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if c.State() != StateRunning || c.Leader == nil {
		return c, nil
	}

	if c.Services, err = m.leaderServices(ctx, c); err != nil {
		m.log.Warn("Failed to read services of cluster", "cluster", name, "error", err)
	}
	return c, nil
}

// DescribeAll returns every cluster known to the provider, sorted by name.
func (m *Manager) DescribeAll(ctx context.Context) ([]*Cluster, error) {
	nodes, err := m.config.Provider.FindNodes(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return group(nodes)
}

// Start starts a stopped cluster, re-provisions its nodes and starts its services.
func (m *Manager) Start(ctx context.Context, name string) (c *Cluster, err error) {
	defer m.operation("start", name)(&err)

	c, err = m.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if c.State() == StateRunning {
		return c, &NothingToDoError{Cluster: name, State: StateRunning}
	}
	if err := requireState(c, "start", StateStopped); err != nil {
		return c, err
	}

	nodes := c.Nodes()
	if err := m.config.Provider.StartNodes(ctx, nodes); err != nil {
		return nil, fmt.Errorf("failed to start cluster '%s': %w", name, err)
	}
	if err := m.config.Provider.WaitForState(ctx, nodes, StateRunning); err != nil {
		return nil, fmt.Errorf("failed to start cluster '%s': %w", name, err)
	}

	// Addresses change across a stop and start
	c, err = m.refresh(ctx, name, nodeIDs(nodes), StateRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to start cluster '%s': %w", name, err)
	}
	if c.Services, err = m.leaderServices(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to start cluster '%s': %w", name, err)
	}

	p := &provisioner{m: m, cluster: c, restart: true}
	storage, err := p.provisionAll(ctx, c.Nodes())
	if err != nil {
		return nil, fmt.Errorf("failed to start cluster '%s': %w", name, err)
	}
	if c.Leader != nil {
		c.Storage = storage[c.Leader.ID]
	}

	if err := m.startServices(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to start cluster '%s': %w", name, err)
	}
	return c, nil
}

func (m *Manager) Stop(ctx context.Context, name string) (err error) {
	defer m.operation("stop", name)(&err)

	c, err := m.find(ctx, name)
	if err != nil {
		return err
	}
	if c.State() == StateStopped {
		return &NothingToDoError{Cluster: name, State: StateStopped}
	}
	if err := requireState(c, "stop", StateRunning); err != nil {
		return err
	}

	nodes := c.Nodes()
	if spot := lo.Filter(nodes, func(n Node, _ int) bool { return n.Interruptible }); len(spot) > 0 {
		return usageErrorf("cluster '%s' cannot be stopped, its interruptible nodes (%s) can only be destroyed", name, strings.Join(nodeIDs(spot), ", "))
	}
	if err := m.config.Provider.StopNodes(ctx, nodes); err != nil {
		return fmt.Errorf("failed to stop cluster '%s': %w", name, err)
	}
	if err := m.config.Provider.WaitForState(ctx, nodes, StateStopped); err != nil {
		return fmt.Errorf("failed to stop cluster '%s': %w", name, err)
	}
	return nil
}

// Destroy terminates every node of the cluster and deletes its security group.
// It works from any state.
func (m *Manager) Destroy(ctx context.Context, name string) (err error) {
	defer m.operation("destroy", name)(&err)

	c, err := m.find(ctx, name)
	if err != nil {
		return err
	}
	nodes := c.Nodes()

	if err := m.config.Provider.DetachClusterSecurityGroup(ctx, name, nodes); err != nil {
		return fmt.Errorf("failed to destroy cluster '%s': %w", name, err)
	}
	if err := sleep(ctx, m.config.SettleDelay); err != nil {
		return fmt.Errorf("failed to destroy cluster '%s': %w", name, err)
	}

	if err := m.config.Provider.TerminateNodes(ctx, nodes); err != nil {
		return fmt.Errorf("failed to destroy cluster '%s': %w", name, err)
	}
	m.emit(EventNodesTerminated{Cluster: name, Nodes: nodeIDs(nodes)})

	if err := m.config.Provider.WaitForState(ctx, nodes, StateTerminated); err != nil {
		return fmt.Errorf("failed to destroy cluster '%s': %w", name, err)
	}
	if err := m.config.Provider.DeleteClusterSecurityGroup(ctx, name); err != nil {
		return fmt.Errorf("failed to destroy cluster '%s': %w", name, err)
	}
	return nil
}
