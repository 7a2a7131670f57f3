package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gammadia/flotilla/cluster"
)

func TestProgress(t *testing.T) {
	p := NewProgress(&bytes.Buffer{})

	p.Handle(cluster.EventOperationStarted{Operation: "launch", Cluster: "demo"})
	assert.Equal(t, "Launching cluster 'demo'", p.message())

	p.Handle(cluster.EventNodesCreated{Cluster: "demo", Role: cluster.RoleLeader, Nodes: []string{"i-1"}})
	p.Handle(cluster.EventNodesCreated{Cluster: "demo", Role: cluster.RoleWorker, Nodes: []string{"i-2", "i-3"}})
	assert.Equal(t, "Created 2 worker node(s) for cluster 'demo'", p.message())

	p.Handle(cluster.EventNodeStateChanged{Cluster: "demo", Node: "i-1", State: cluster.NodeStateReady})
	p.Handle(cluster.EventNodeStateChanged{Cluster: "demo", Node: "i-2", State: cluster.NodeStateJavaEnsured})
	assert.Equal(t, "Provisioning cluster 'demo': 1/3 node(s) ready", p.message())

	p.Handle(cluster.EventNodeStateChanged{Cluster: "demo", Node: "i-2", State: cluster.NodeStateReady})
	assert.Equal(t, "Provisioning cluster 'demo': 2/3 node(s) ready", p.message())

	p.Handle(cluster.EventServiceStarted{Cluster: "demo", Service: "storage"})
	assert.Equal(t, "Started storage on cluster 'demo'", p.message())

	p.Handle(cluster.EventOperationCompleted{Operation: "launch", Cluster: "demo"})
	assert.Empty(t, p.message())
}

func TestProgressCompletion(t *testing.T) {
	p := NewProgress(&bytes.Buffer{})

	assert.NotPanics(t, func() {
		// Events outside of an operation have no spinner to update
		p.Handle(cluster.EventNodesTerminated{Cluster: "demo", Nodes: []string{"i-1"}})
		p.Handle(cluster.EventOperationCompleted{Operation: "stop", Cluster: "demo", Err: errors.New("boom")})
	})

	p.Handle(cluster.EventOperationStarted{Operation: "stop", Cluster: "demo"})
	p.Handle(cluster.EventOperationCompleted{
		Operation: "stop",
		Cluster:   "demo",
		Err:       &cluster.NothingToDoError{Cluster: "demo", State: cluster.StateStopped},
	})
	assert.Empty(t, p.message())
}

func TestTitles(t *testing.T) {
	assert.Equal(t, "Adding workers to", title("add-workers"))
	assert.Equal(t, "Destroyed", done("destroy"))
	assert.Equal(t, "describe", title("describe"))
}
