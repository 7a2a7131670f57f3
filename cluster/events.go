package cluster

type Event interface{}

// NodeState is the progress of a node through provisioning.
type NodeState string

const (
	NodeStateCreated            NodeState = "created"
	NodeStateSSHReachable       NodeState = "ssh-reachable"
	NodeStateKeysInstalled      NodeState = "keys-installed"
	NodeStateStorageConfigured  NodeState = "storage-configured"
	NodeStateJavaEnsured        NodeState = "java-ensured"
	NodeStateServicesInstalled  NodeState = "services-installed"
	NodeStateServicesConfigured NodeState = "services-configured"
	NodeStateReady              NodeState = "ready"
	NodeStateFailed             NodeState = "failed"
)

// Operations

type EventOperationStarted struct {
	Operation string
	Cluster   string
}

type EventOperationCompleted struct {
	Operation string
	Cluster   string
	Err       error
}

// Nodes

type EventNodesCreated struct {
	Cluster string
	Role    Role
	Nodes   []string
}

type EventNodeStateChanged struct {
	Cluster string
	Node    string
	Host    string
	State   NodeState
	Err     error
}

type EventNodesTerminated struct {
	Cluster string
	Nodes   []string
}

// Services

type EventServiceStarted struct {
	Cluster string
	Service string
}
