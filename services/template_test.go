package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderReplacesKnownPlaceholders(t *testing.T) {
	out := Render("fs.defaultFS=hdfs://{leader_host}:8020", map[string]string{"leader_host": "10.0.0.1"})
	assert.Equal(t, "fs.defaultFS=hdfs://10.0.0.1:8020", out)
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	template := "master={leader_host} executors={compute_executor_instances}"
	out := Render(template, map[string]string{"leader_host": "10.0.0.1"})
	assert.Equal(t, "master=10.0.0.1 executors={compute_executor_instances}", out)
}

func TestRenderIsIdempotent(t *testing.T) {
	template := "{a}-{b}-{missing}"
	mapping := map[string]string{"a": "1", "b": "2"}

	first := Render(template, mapping)
	second := Render(template, mapping)
	assert.Equal(t, first, second)
	assert.Equal(t, "1-2-{missing}", first)
}

func TestRenderIgnoresShellExpansions(t *testing.T) {
	template := `export JAVA_HOME="${JAVA_HOME}"; echo {root_dir}`
	out := Render(template, map[string]string{"root_dir": "/media/root", "JAVA_HOME": "nope"})
	assert.Equal(t, `export JAVA_HOME="${JAVA_HOME}"; echo /media/root`, out)
}

func TestRenderDoesNotRecurse(t *testing.T) {
	out := Render("{a}", map[string]string{"a": "{b}", "b": "x"})
	assert.Equal(t, "{b}", out)
}

func TestClusterInfoMapping(t *testing.T) {
	info := ClusterInfo{
		Name:            "demo",
		LeaderPrivateIP: "10.0.0.1",
		LeaderPublicIP:  "54.1.2.3",
		WorkerIPs:       []string{"10.0.0.2", "10.0.0.3"},
		Storage:         StorageDirs{Root: "/media/root", Ephemeral: []string{"/media/ephemeral0", "/media/ephemeral1"}},
		JavaVersion:     11,
	}

	m := info.Mapping()
	assert.Equal(t, "10.0.0.2\n10.0.0.3", m["worker_hosts"])
	assert.Equal(t, "2", m["worker_count"])
	assert.Equal(t, "/media/ephemeral0,/media/ephemeral1", m["ephemeral_dirs"])
	assert.Equal(t, "/media/ephemeral0/hdfs/data,/media/ephemeral1/hdfs/data", info.dataDirs("hdfs/data"))

	info.Storage.Ephemeral = nil
	assert.Equal(t, "/media/root/hdfs/data", info.dataDirs("hdfs/data"))
}
