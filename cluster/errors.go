package cluster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrClusterNotFound      = errors.New("cluster not found")
	ErrClusterAlreadyExists = errors.New("cluster already exists")
)

// InvalidStateError is returned when an operation's precondition on the cluster state fails.
type InvalidStateError struct {
	Cluster   string
	Operation string
	State     State
	Allowed   []State
}

func (e *InvalidStateError) Error() string {
	allowed := lo.Map(e.Allowed, func(s State, _ int) string { return string(s) })
	return fmt.Sprintf("cannot %s cluster '%s': it is %s, it must be %s", e.Operation, e.Cluster, e.State, strings.Join(allowed, " or "))
}

// NothingToDoError is returned when the cluster already is in the requested state.
// It is not a failure.
type NothingToDoError struct {
	Cluster string
	State   State
}

func (e *NothingToDoError) Error() string {
	return fmt.Sprintf("cluster '%s' is already %s, nothing to do", e.Cluster, e.State)
}

type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Reason: fmt.Sprintf(format, args...)}
}

func notFound(name string) error {
	return fmt.Errorf("%w: '%s'", ErrClusterNotFound, name)
}

func requireState(c *Cluster, operation string, allowed ...State) error {
	state := c.State()
	if lo.Contains(allowed, state) {
		return nil
	}
	return &InvalidStateError{Cluster: c.Name, Operation: operation, State: state, Allowed: allowed}
}
