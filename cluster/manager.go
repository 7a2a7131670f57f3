package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/siderolabs/go-retry/retry"

	"github.com/gammadia/flotilla/parallel"
	"github.com/gammadia/flotilla/remote"
	"github.com/gammadia/flotilla/services"
)

// Manager runs lifecycle operations against clusters. It keeps no state between
// operations: every operation reads the inventory from the provider again.
type Manager struct {
	config Config
	log    *slog.Logger
}

func NewManager(config Config) (*Manager, error) {
	if err := Validate(config); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BuildServices == nil {
		config.BuildServices = services.Build
	}

	return &Manager{
		config: config,
		log:    config.Logger.With(slog.String("provider", config.Provider.Name())),
	}, nil
}

func (m *Manager) emit(event Event) {
	if m.config.OnEvent != nil {
		m.config.OnEvent(event)
	}
}

// operation brackets an operation with start/completion events and a log line.
func (m *Manager) operation(name, clusterName string) func(err *error) {
	m.log.Debug("Operation started", "operation", name, "cluster", clusterName)
	m.emit(EventOperationStarted{Operation: name, Cluster: clusterName})
	start := time.Now()

	return func(err *error) {
		m.emit(EventOperationCompleted{Operation: name, Cluster: clusterName, Err: *err})
		if *err != nil {
			m.log.Debug("Operation failed", "operation", name, "cluster", clusterName, "error", *err)
			return
		}
		m.log.Info("Operation completed", "operation", name, "cluster", clusterName, "duration", time.Since(start).Round(time.Second))
	}
}

func (m *Manager) parallelOptions() parallel.Options {
	return parallel.Options{Limit: m.config.Concurrency}
}

func (m *Manager) find(ctx context.Context, name string) (*Cluster, error) {
	nodes, err := m.config.Provider.FindNodes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes of cluster '%s': %w", name, err)
	}
	if len(nodes) == 0 {
		return nil, notFound(name)
	}
	return newCluster(name, nodes)
}

// refresh reads the cluster again until every expected node is listed in the given state.
// Listings lag behind creation and state changes, so a missing node is retried.
func (m *Manager) refresh(ctx context.Context, name string, expected []string, state State) (*Cluster, error) {
	var c *Cluster

	err := retry.Constant(m.config.SettleTimeout, retry.WithUnits(m.config.PollInterval)).RetryWithContext(ctx, func(ctx context.Context) error {
		nodes, err := m.config.Provider.FindNodes(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to list nodes of cluster '%s': %w", name, err)
		}

		listed := lo.SliceToMap(nodes, func(n Node) (string, State) { return n.ID, n.State })
		for _, id := range expected {
			if listed[id] != state {
				return retry.ExpectedErrorf("node %s is not listed as %s yet", id, state)
			}
		}

		c, err = newCluster(name, nodes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// dialAll opens one session per node and hands it to fn, closing it afterwards.
func (m *Manager) dialAll(ctx context.Context, nodes []Node, fn func(ctx context.Context, node Node, s remote.Session) error) error {
	return parallel.Run(ctx, nodes, func(ctx context.Context, node Node) error {
		session, err := m.config.Dialer.Dial(ctx, node.Address())
		if err != nil {
			return err
		}
		defer session.Close()

		return fn(ctx, node, session)
	}, m.parallelOptions())
}

// cleanup terminates nodes created by a failed operation. It runs even when ctx was
// cancelled, bounded by the cleanup timeout.
func (m *Manager) cleanup(ctx context.Context, clusterName string, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.CleanupTimeout)
	defer cancel()

	m.log.Warn("Terminating nodes created by failed operation", "cluster", clusterName, "nodes", len(nodes))
	if err := m.config.Provider.TerminateNodes(ctx, nodes); err != nil {
		m.log.Error("Failed to terminate nodes", "cluster", clusterName, "nodes", nodeIDs(nodes), "error", err)
		return fmt.Errorf("failed to terminate nodes %v: %w", nodeIDs(nodes), err)
	}
	m.emit(EventNodesTerminated{Cluster: clusterName, Nodes: nodeIDs(nodes)})
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
