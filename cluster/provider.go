package cluster

import (
	"context"

	"github.com/gammadia/flotilla/remote"
)

// Tags attached to every node; they are the only source of cluster membership.
const (
	TagCluster = "flotilla-cluster"
	TagRole    = "flotilla-role"
	TagName    = "Name"
)

// NodeSpec describes the nodes to create in one CreateNodes call.
type NodeSpec struct {
	ClusterName   string
	Role          Role
	Interruptible bool
}

// Tags returns the tags identifying a node created from this spec.
func (s NodeSpec) Tags() map[string]string {
	return map[string]string{
		TagCluster: s.ClusterName,
		TagRole:    string(s.Role),
		TagName:    s.ClusterName + "-" + string(s.Role),
	}
}

// Provider is the cloud-side half of the orchestrator. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string

	// FindNodes lists the non-terminated nodes of a cluster, or of every cluster when
	// clusterName is empty.
	FindNodes(ctx context.Context, clusterName string) ([]Node, error)

	// EnsureSecurityGroups creates the shared and per-cluster groups if missing.
	EnsureSecurityGroups(ctx context.Context, clusterName string) error

	CreateNodes(ctx context.Context, spec NodeSpec, count int) ([]Node, error)
	TagNodes(ctx context.Context, nodes []Node, tags map[string]string) error

	StartNodes(ctx context.Context, nodes []Node) error
	StopNodes(ctx context.Context, nodes []Node) error
	TerminateNodes(ctx context.Context, nodes []Node) error

	// WaitForState blocks until every node reports the given state.
	WaitForState(ctx context.Context, nodes []Node, state State) error

	DetachClusterSecurityGroup(ctx context.Context, clusterName string, nodes []Node) error
	DeleteClusterSecurityGroup(ctx context.Context, clusterName string) error
}

// Dialer opens remote sessions on nodes. *remote.Dialer implements it.
type Dialer interface {
	Dial(ctx context.Context, host string) (remote.Session, error)
}
