package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gammadia/flotilla/cluster"
)

var fast = Timeouts{State: time.Second, PollInterval: time.Millisecond}

func TestWaitForPollsUntilDone(t *testing.T) {
	calls := 0
	err := WaitFor(context.Background(), fast, "nodes", func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitForRetriesExpectedErrors(t *testing.T) {
	calls := 0
	err := WaitFor(context.Background(), fast, "nodes", func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, retry.ExpectedError(errors.New("not found"))
		}
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitForStopsOnUnexpectedError(t *testing.T) {
	calls := 0
	err := WaitFor(context.Background(), fast, "nodes", func(context.Context) (bool, error) {
		calls++
		return false, errors.New("access denied")
	})
	require.ErrorContains(t, err, "access denied")
	assert.Contains(t, err.Error(), "failed while waiting for nodes")
	assert.Equal(t, 1, calls)
}

func TestWaitForTimesOut(t *testing.T) {
	err := WaitFor(context.Background(), Timeouts{State: 20 * time.Millisecond, PollInterval: time.Millisecond}, "nodes", func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorContains(t, err, "failed while waiting for nodes")
}

func TestRoleFromTags(t *testing.T) {
	assert.Equal(t, cluster.RoleLeader, RoleFromTags(map[string]string{cluster.TagRole: "leader"}))
	assert.Equal(t, cluster.RoleWorker, RoleFromTags(map[string]string{cluster.TagRole: "worker"}))
	assert.Equal(t, cluster.RoleWorker, RoleFromTags(map[string]string{}))
	assert.Equal(t, cluster.RoleWorker, RoleFromTags(nil))
}

func TestClusterRules(t *testing.T) {
	rules := ClusterRules([]string{"198.51.100.7/32"}, []int{8080, 9870})
	require.Len(t, rules, 5)
	assert.True(t, rules[0].Self())
	assert.Equal(t, Rule{Protocol: "tcp", FromPort: 9870, ToPort: 9870, CIDR: "198.51.100.7/32"}, rules[4])

	assert.Equal(t, []Rule{{Protocol: "tcp", FromPort: 22, ToPort: 22, CIDR: "0.0.0.0/0"}}, BaseRules([]string{"0.0.0.0/0"}))
	assert.Equal(t, "flotilla-demo", ClusterSecurityGroup("demo"))
}

func TestOperatorCIDRs(t *testing.T) {
	cidrs, err := OperatorCIDRs(context.Background(), []string{"10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8"}, cidrs)

	_, err = OperatorCIDRs(context.Background(), []string{"10.0.0.0"})
	assert.ErrorContains(t, err, "invalid operator CIDR '10.0.0.0'")
}

func TestPublicIP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "198.51.100.7")
	}))
	defer server.Close()

	ip, err := publicIP(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", ip)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "<html>")
	}))
	defer broken.Close()

	_, err = publicIP(context.Background(), broken.URL)
	assert.ErrorContains(t, err, "invalid address")
}
