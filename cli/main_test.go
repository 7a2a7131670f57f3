package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gammadia/flotilla/cli/config"
	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/services"
)

func TestValidateName(t *testing.T) {
	assert.NoError(t, validateName("brave-otter"))
	assert.NoError(t, validateName("spark2"))

	for _, name := range []string{"", "Brave", "a_b", "-a", "a--b", "a b"} {
		var usage *cluster.UsageError
		assert.ErrorAs(t, validateName(name), &usage, "name %q", name)
	}
}

func TestParseCount(t *testing.T) {
	count, err := parseCount("3")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = parseCount("three")
	assert.EqualError(t, err, "invalid number of workers 'three'")
}

func TestLoginArgs(t *testing.T) {
	settings = config.Config{SSH: config.SSH{User: "ec2-user", IdentityFile: "/keys/operator.pem", Port: 2222}}
	t.Cleanup(func() { settings = config.Config{} })

	assert.Equal(t, []string{
		"-i", "/keys/operator.pem",
		"-p", "2222",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"ec2-user@203.0.113.1",
	}, loginArgs("203.0.113.1"))
}

func TestPrintStatus(t *testing.T) {
	status := clusterStatus{
		Status: cluster.Status{
			Name:      "demo",
			State:     cluster.StateRunning,
			NodeCount: 2,
			Leader:    "203.0.113.1",
			Workers:   []string{"10.0.0.2"},
		},
		Services: []serviceStatus{
			{Name: "storage", Version: "3.3.6", URL: "http://203.0.113.1:9870", Healthy: lo.ToPtr(true)},
			{Name: "compute", Version: "3.5.1", Healthy: lo.ToPtr(false), Error: "connection refused"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printYAML(&buf, status))
	assert.Equal(t, `name: demo
state: running
node-count: 2
leader: 203.0.113.1
workers:
  - 10.0.0.2
services:
  - name: storage
    version: 3.3.6
    url: http://203.0.113.1:9870
    healthy: true
  - name: compute
    version: 3.5.1
    healthy: false
    error: connection refused
`, buf.String())
}

func TestServiceStatuses(t *testing.T) {
	storage, err := services.NewStorage(services.Source{Version: "3.3.6"})
	require.NoError(t, err)
	compute, err := services.NewCompute(services.Source{GitCommit: "abc123", GitRepository: "https://github.com/apache/spark"})
	require.NoError(t, err)
	c := &cluster.Cluster{Name: "demo", Services: []services.Service{storage, compute}}

	assert.Equal(t, []serviceStatus{
		{Name: "storage", Version: "3.3.6"},
		{Name: "compute", Version: "https://github.com/apache/spark@abc123"},
	}, serviceStatuses(c, nil))

	statuses := serviceStatuses(c, []cluster.HealthReport{
		{Health: services.Health{Service: "compute", URL: "http://203.0.113.1:8080", Healthy: true}},
		{Health: services.Health{Service: "storage"}, Err: errors.New("connection refused")},
	})
	require.Len(t, statuses, 2)
	assert.Equal(t, "3.3.6", statuses[0].Version)
	assert.Equal(t, lo.ToPtr(false), statuses[0].Healthy)
	assert.Equal(t, "connection refused", statuses[0].Error)
	assert.Equal(t, lo.ToPtr(true), statuses[1].Healthy)
	assert.Equal(t, "http://203.0.113.1:8080", statuses[1].URL)
}

func TestCompletion(t *testing.T) {
	for shell, marker := range map[string]string{
		"bash":       "__start_flotilla",
		"zsh":        "#compdef flotilla",
		"fish":       "complete -c flotilla",
		"powershell": "Register-ArgumentCompleter",
	} {
		t.Run(shell, func(t *testing.T) {
			var out bytes.Buffer
			completionCmd.SetOut(&out)
			t.Cleanup(func() { completionCmd.SetOut(nil) })

			require.NoError(t, writeCompletion(completionCmd, shell))
			assert.Contains(t, out.String(), marker)
		})
	}

	assert.EqualError(t, writeCompletion(completionCmd, "tcsh"), "unsupported shell 'tcsh'")
	assert.Error(t, completionCmd.Args(completionCmd, []string{"tcsh"}))
	assert.NoError(t, completionCmd.Args(completionCmd, []string{"fish"}))
}
