package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gammadia/flotilla/services"
)

func node(id string, role Role, state State) Node {
	return Node{ID: id, Cluster: "demo", Role: role, State: state, PublicIP: "203.0.113." + id, PrivateIP: "10.0.0." + id}
}

func TestClusterState(t *testing.T) {
	tests := []struct {
		name   string
		states []State
		want   State
	}{
		{"empty cluster", nil, StateTerminated},
		{"all running", []State{StateRunning, StateRunning, StateRunning}, StateRunning},
		{"all stopped", []State{StateStopped, StateStopped}, StateStopped},
		{"mixed", []State{StateRunning, StateStopped, StateRunning}, StateInconsistent},
		{"leader only", []State{StatePending}, StatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nodes []Node
			for i, state := range tt.states {
				role := RoleWorker
				if i == 0 {
					role = RoleLeader
				}
				nodes = append(nodes, node(string(rune('1'+i)), role, state))
			}

			c, err := newCluster("demo", nodes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.State())
		})
	}
}

func TestNewClusterOrdersLeaderFirst(t *testing.T) {
	w1 := node("1", RoleWorker, StateRunning)
	w1.LaunchedAt = time.Unix(10, 0)
	leader := node("2", RoleLeader, StateRunning)
	w2 := node("3", RoleWorker, StateRunning)
	w2.LaunchedAt = time.Unix(5, 0)

	c, err := newCluster("demo", []Node{w1, leader, w2})
	require.NoError(t, err)

	require.NotNil(t, c.Leader)
	assert.Equal(t, "2", c.Leader.ID)
	assert.Equal(t, []string{"2", "3", "1"}, nodeIDs(c.Nodes()))
	assert.Equal(t, "203.0.113.2", c.LeaderIP())
	assert.Equal(t, []string{"203.0.113.3", "203.0.113.1"}, c.WorkerIPs())
}

func TestNewClusterRejectsTwoLeaders(t *testing.T) {
	_, err := newCluster("demo", []Node{node("1", RoleLeader, StateRunning), node("2", RoleLeader, StateRunning)})
	assert.EqualError(t, err, "cluster 'demo' has more than one leader (1, 2)")
}

func TestGroupSplitsByCluster(t *testing.T) {
	a := node("1", RoleLeader, StateRunning)
	a.Cluster = "beta"
	b := node("2", RoleLeader, StateStopped)
	b.Cluster = "alpha"
	c := node("3", RoleWorker, StateStopped)
	c.Cluster = "alpha"

	clusters, err := group([]Node{a, b, c})
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "alpha", clusters[0].Name)
	assert.Len(t, clusters[0].Nodes(), 2)
	assert.Equal(t, "beta", clusters[1].Name)
	assert.Empty(t, clusters[1].Workers)
}

func TestClusterInfoUsesPrivateAddresses(t *testing.T) {
	c, err := newCluster("demo", []Node{node("1", RoleLeader, StateRunning), node("2", RoleWorker, StateRunning)})
	require.NoError(t, err)

	storage := services.StorageDirs{Root: "/media/root"}
	info := c.Info(storage, 11)
	assert.Equal(t, "10.0.0.1", info.LeaderPrivateIP)
	assert.Equal(t, "203.0.113.1", info.LeaderPublicIP)
	assert.Equal(t, []string{"10.0.0.2"}, info.WorkerIPs)
	assert.Equal(t, storage, info.Storage)
	assert.Equal(t, 11, info.JavaVersion)
}

func TestStatusHidesAddressesUnlessRunning(t *testing.T) {
	running, err := newCluster("demo", []Node{node("1", RoleLeader, StateRunning), node("2", RoleWorker, StateRunning)})
	require.NoError(t, err)
	assert.Equal(t, Status{
		Name:      "demo",
		State:     StateRunning,
		NodeCount: 2,
		Leader:    "203.0.113.1",
		Workers:   []string{"203.0.113.2"},
	}, running.Status())

	stopped, err := newCluster("demo", []Node{node("1", RoleLeader, StateStopped)})
	require.NoError(t, err)
	assert.Equal(t, Status{Name: "demo", State: StateStopped, NodeCount: 1}, stopped.Status())
}

func TestRemovalOrderPrefersInterruptible(t *testing.T) {
	workers := []Node{
		{ID: "stable-1"},
		{ID: "spot-1", Interruptible: true},
		{ID: "stable-2"},
		{ID: "spot-2", Interruptible: true},
	}

	assert.Equal(t, []string{"spot-1", "spot-2", "stable-1", "stable-2"}, nodeIDs(removalOrder(workers)))
	assert.Equal(t, []string{"spot-1"}, nodeIDs(removalOrder(workers)[:1]))
	// The input is left untouched
	assert.Equal(t, "stable-1", workers[0].ID)
}

func TestNodeAddressFallsBackToPrivate(t *testing.T) {
	n := Node{PrivateIP: "10.0.0.9"}
	assert.Equal(t, "10.0.0.9", n.Address())
	n.PublicIP = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", n.Address())
	assert.Equal(t, "10.0.0.9", n.PrivateAddress())
}

func TestErrorMessages(t *testing.T) {
	assert.EqualError(t,
		&InvalidStateError{Cluster: "demo", Operation: "start", State: StateInconsistent, Allowed: []State{StateStopped}},
		"cannot start cluster 'demo': it is inconsistent, it must be stopped",
	)
	assert.EqualError(t, &NothingToDoError{Cluster: "demo", State: StateRunning}, "cluster 'demo' is already running, nothing to do")
	assert.EqualError(t, notFound("demo"), "cluster not found: 'demo'")
	assert.ErrorIs(t, notFound("demo"), ErrClusterNotFound)
}

func TestNodeSpecTags(t *testing.T) {
	assert.Equal(t, map[string]string{
		TagCluster: "demo",
		TagRole:    "worker",
		TagName:    "demo-worker",
	}, NodeSpec{ClusterName: "demo", Role: RoleWorker}.Tags())
}
