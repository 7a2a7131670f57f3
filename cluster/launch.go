package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/gammadia/flotilla/remote"
)

type LaunchOptions struct {
	Name    string
	Workers int
	// SpotWorkers requests interruptible capacity for workers, the leader is never interruptible
	SpotWorkers bool
}

// Launch creates a cluster of one leader and opts.Workers workers, provisions every node and
// starts the services. If anything fails after the first node was created, including an
// interrupt, every node created by this call is terminated before returning.
func (m *Manager) Launch(ctx context.Context, opts LaunchOptions) (c *Cluster, err error) {
	defer m.operation("launch", opts.Name)(&err)

	if opts.Name == "" {
		return nil, usageErrorf("a cluster name is required")
	}
	if opts.Workers < 1 {
		return nil, usageErrorf("a cluster needs at least one worker, got %d", opts.Workers)
	}

	existing, err := m.config.Provider.FindNodes(ctx, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes of cluster '%s': %w", opts.Name, err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrClusterAlreadyExists, opts.Name)
	}

	keys, err := remote.GenerateKeyPair("flotilla-" + opts.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cluster key pair: %w", err)
	}

	if err := m.config.Provider.EnsureSecurityGroups(ctx, opts.Name); err != nil {
		return nil, fmt.Errorf("failed to set up security groups of cluster '%s': %w", opts.Name, err)
	}

	var created []Node
	defer func() {
		if err == nil {
			return
		}
		if cleanupErr := m.cleanup(ctx, opts.Name, created); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
		}
		if errors.Is(err, context.Canceled) {
			err = fmt.Errorf("launch of cluster '%s' interrupted, %d created nodes terminated: %w", opts.Name, len(created), err)
		} else {
			err = fmt.Errorf("failed to launch cluster '%s': %w", opts.Name, err)
		}
	}()

	specs := []struct {
		spec  NodeSpec
		count int
	}{
		{NodeSpec{ClusterName: opts.Name, Role: RoleLeader}, 1},
		{NodeSpec{ClusterName: opts.Name, Role: RoleWorker, Interruptible: opts.SpotWorkers}, opts.Workers},
	}
	for _, s := range specs {
		nodes, err := m.createNodes(ctx, s.spec, s.count)
		created = append(created, nodes...)
		if err != nil {
			return nil, err
		}
	}

	if err := m.config.Provider.WaitForState(ctx, created, StateRunning); err != nil {
		return nil, fmt.Errorf("nodes did not reach running state: %w", err)
	}

	c, err = m.refresh(ctx, opts.Name, nodeIDs(created), StateRunning)
	if err != nil {
		return nil, err
	}
	c.Services = m.config.Services

	p := &provisioner{m: m, cluster: c, keys: &keys}
	storage, err := p.provisionAll(ctx, c.Nodes())
	if err != nil {
		return nil, err
	}
	c.Storage = storage[c.Leader.ID]

	if err := m.startServices(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// createNodes creates and tags count nodes. Nodes that were created are returned even on error.
func (m *Manager) createNodes(ctx context.Context, spec NodeSpec, count int) ([]Node, error) {
	nodes, err := m.config.Provider.CreateNodes(ctx, spec, count)
	if err != nil {
		return nodes, fmt.Errorf("failed to create %d %s nodes: %w", count, spec.Role, err)
	}
	m.log.Info("Created nodes", "cluster", spec.ClusterName, "role", spec.Role, "nodes", nodeIDs(nodes))
	m.emit(EventNodesCreated{Cluster: spec.ClusterName, Role: spec.Role, Nodes: nodeIDs(nodes)})

	if err := m.config.Provider.TagNodes(ctx, nodes, spec.Tags()); err != nil {
		return nodes, fmt.Errorf("failed to tag %s nodes: %w", spec.Role, err)
	}
	return nodes, nil
}
