package ui

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/gammadia/flotilla/cluster"
)

// Progress turns cluster events into a spinner line. Handle may be called from
// several goroutines at once.
type Progress struct {
	w       io.Writer
	mu      sync.Mutex
	spinner *Spinner
	nodes   map[string]cluster.NodeState
	total   int
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w, nodes: map[string]cluster.NodeState{}}
}

func (p *Progress) Handle(event cluster.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := event.(type) {
	case cluster.EventOperationStarted:
		p.nodes = map[string]cluster.NodeState{}
		p.total = 0
		p.spinner = NewSpinner(p.w, fmt.Sprintf("%s cluster '%s'", title(e.Operation), e.Cluster))

	case cluster.EventNodesCreated:
		p.total += len(e.Nodes)
		p.spinner.UpdateMessage(fmt.Sprintf("Created %d %s node(s) for cluster '%s'", len(e.Nodes), e.Role, e.Cluster))

	case cluster.EventNodeStateChanged:
		p.nodes[e.Node] = e.State
		if p.total < len(p.nodes) {
			p.total = len(p.nodes)
		}
		p.spinner.UpdateMessage(p.provisioningMessage(e.Cluster))

	case cluster.EventServiceStarted:
		p.spinner.UpdateMessage(fmt.Sprintf("Started %s on cluster '%s'", e.Service, e.Cluster))

	case cluster.EventNodesTerminated:
		p.spinner.UpdateMessage(fmt.Sprintf("Terminated %d node(s) of cluster '%s'", len(e.Nodes), e.Cluster))

	case cluster.EventOperationCompleted:
		var nothingToDo *cluster.NothingToDoError
		switch {
		case e.Err == nil:
			p.spinner.Success(fmt.Sprintf("%s cluster '%s'", done(e.Operation), e.Cluster))
		case errors.As(e.Err, &nothingToDo):
			// Reported by the caller
			if p.spinner != nil {
				p.spinner.Stop()
			}
		default:
			p.spinner.Fail()
		}
		p.spinner = nil
	}
}

// provisioningMessage must be called with the lock held.
func (p *Progress) provisioningMessage(clusterName string) string {
	var ready, failed int
	for _, state := range p.nodes {
		switch state {
		case cluster.NodeStateReady:
			ready++
		case cluster.NodeStateFailed:
			failed++
		}
	}

	msg := fmt.Sprintf("Provisioning cluster '%s': %d/%d node(s) ready", clusterName, ready, p.total)
	if failed > 0 {
		msg += color.HiRedString(", %d failed", failed)
	}
	return msg
}

func (p *Progress) message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner == nil {
		return ""
	}
	return p.spinner.msg
}

var titles = map[string][2]string{
	"launch":         {"Launching", "Launched"},
	"start":          {"Starting", "Started"},
	"stop":           {"Stopping", "Stopped"},
	"destroy":        {"Destroying", "Destroyed"},
	"add-workers":    {"Adding workers to", "Added workers to"},
	"remove-workers": {"Removing workers from", "Removed workers from"},
	"run-command":    {"Running command on", "Ran command on"},
	"copy-file":      {"Copying file to", "Copied file to"},
}

func title(operation string) string {
	if t, ok := titles[operation]; ok {
		return t[0]
	}
	return operation
}

func done(operation string) string {
	if t, ok := titles[operation]; ok {
		return t[1]
	}
	return operation
}
