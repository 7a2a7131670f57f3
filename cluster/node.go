package cluster

import (
	"time"
)

type Role string

const (
	RoleLeader Role = "leader"
	RoleWorker Role = "worker"
)

// State is a provider-level instance state.
type State string

const (
	StatePending      State = "pending"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
	StateShuttingDown State = "shutting-down"
	StateTerminated   State = "terminated"

	// StateInconsistent is reported by a cluster whose nodes disagree
	StateInconsistent State = "inconsistent"
)

// Node is a snapshot of one instance as last reported by the provider. It is never
// updated in place: a fresh snapshot is obtained by querying the provider again.
type Node struct {
	ID             string
	Cluster        string
	Role           Role
	State          State
	PublicIP       string
	PrivateIP      string
	SecurityGroups []string
	// Interruptible nodes may be reclaimed by the provider at any time (spot instances)
	Interruptible bool
	LaunchedAt    time.Time
}

// Address returns the address used to reach the node from the operator's machine.
func (n Node) Address() string {
	if n.PublicIP != "" {
		return n.PublicIP
	}
	return n.PrivateIP
}

// PrivateAddress returns the address used between nodes of the cluster.
func (n Node) PrivateAddress() string {
	if n.PrivateIP != "" {
		return n.PrivateIP
	}
	return n.PublicIP
}

func nodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
