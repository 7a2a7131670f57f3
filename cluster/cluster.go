package cluster

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/gammadia/flotilla/services"
)

// Cluster is a snapshot of a cluster's topology derived from the provider inventory.
type Cluster struct {
	Name string
	// Leader is nil when the leader has been removed or is gone during teardown
	Leader  *Node
	Workers []Node
	// Storage is the leader's disk layout, known once the cluster has been provisioned
	Storage services.StorageDirs
	// Services are the services the cluster was launched with, known once read from its leader
	Services []services.Service
}

// newCluster assembles a cluster from its nodes, leader first then workers in launch order.
func newCluster(name string, nodes []Node) (*Cluster, error) {
	c := &Cluster{Name: name}

	sorted := append([]Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].LaunchedAt.Equal(sorted[j].LaunchedAt) {
			return sorted[i].LaunchedAt.Before(sorted[j].LaunchedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, node := range sorted {
		node := node
		if node.Role == RoleLeader {
			if c.Leader != nil {
				return nil, fmt.Errorf("cluster '%s' has more than one leader (%s, %s)", name, c.Leader.ID, node.ID)
			}
			c.Leader = &node
			continue
		}
		c.Workers = append(c.Workers, node)
	}

	return c, nil
}

// group splits an inventory listing into clusters, sorted by name.
func group(nodes []Node) ([]*Cluster, error) {
	byName := lo.GroupBy(nodes, func(n Node) string { return n.Cluster })
	names := lo.Keys(byName)
	sort.Strings(names)

	clusters := make([]*Cluster, 0, len(names))
	for _, name := range names {
		c, err := newCluster(name, byName[name])
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, nil
}

// Nodes returns every node, leader first.
func (c *Cluster) Nodes() []Node {
	nodes := make([]Node, 0, len(c.Workers)+1)
	if c.Leader != nil {
		nodes = append(nodes, *c.Leader)
	}
	return append(nodes, c.Workers...)
}

// State returns the state shared by every node, or StateInconsistent if they disagree.
func (c *Cluster) State() State {
	nodes := c.Nodes()
	if len(nodes) == 0 {
		return StateTerminated
	}

	state := nodes[0].State
	for _, n := range nodes[1:] {
		if n.State != state {
			return StateInconsistent
		}
	}
	return state
}

func (c *Cluster) LeaderIP() string {
	if c.Leader == nil {
		return ""
	}
	return c.Leader.Address()
}

func (c *Cluster) WorkerIPs() []string {
	return lo.Map(c.Workers, func(n Node, _ int) string { return n.Address() })
}

// Info is the view of the cluster handed to services, with storage being the layout of
// the node the services are configured on.
func (c *Cluster) Info(storage services.StorageDirs, javaVersion int) services.ClusterInfo {
	info := services.ClusterInfo{
		Name:        c.Name,
		WorkerIPs:   lo.Map(c.Workers, func(n Node, _ int) string { return n.PrivateAddress() }),
		Storage:     storage,
		JavaVersion: javaVersion,
	}
	if c.Leader != nil {
		info.LeaderPrivateIP = c.Leader.PrivateAddress()
		info.LeaderPublicIP = c.Leader.Address()
	}
	return info
}

// Status is the operator-facing summary of a cluster.
type Status struct {
	Name      string   `yaml:"name"`
	State     State    `yaml:"state"`
	NodeCount int      `yaml:"node-count"`
	Leader    string   `yaml:"leader,omitempty"`
	Workers   []string `yaml:"workers,omitempty"`
}

// Status summarizes the cluster. Addresses are only included while the cluster runs.
func (c *Cluster) Status() Status {
	status := Status{
		Name:      c.Name,
		State:     c.State(),
		NodeCount: len(c.Nodes()),
	}
	if status.State == StateRunning {
		status.Leader = c.LeaderIP()
		status.Workers = c.WorkerIPs()
	}
	return status
}

// removalOrder returns the workers in the order they should be removed: interruptible
// capacity first, launch order otherwise preserved.
func removalOrder(workers []Node) []Node {
	ordered := append([]Node(nil), workers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Interruptible && !ordered[j].Interruptible
	})
	return ordered
}
