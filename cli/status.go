package main

import (
	"context"
	"io"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/gammadia/flotilla/cluster"
)

type serviceStatus struct {
	Name    string            `yaml:"name"`
	Version string            `yaml:"version,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Healthy *bool             `yaml:"healthy,omitempty"`
	Details map[string]string `yaml:"details,omitempty"`
	Error   string            `yaml:"error,omitempty"`
}

type clusterStatus struct {
	cluster.Status `yaml:",inline"`
	Services       []serviceStatus `yaml:"services,omitempty"`
}

// newClusterStatus summarizes c, with the health of its services when health is set.
func newClusterStatus(ctx context.Context, c *cluster.Cluster, health bool) clusterStatus {
	var reports []cluster.HealthReport
	if health {
		reports = manager.Health(ctx, c)
	}
	return clusterStatus{Status: c.Status(), Services: serviceStatuses(c, reports)}
}

// serviceStatuses lists the services of c with the versions they were launched with,
// merged with the health reports.
func serviceStatuses(c *cluster.Cluster, reports []cluster.HealthReport) []serviceStatus {
	var statuses []serviceStatus
	index := map[string]int{}
	for _, svc := range c.Services {
		manifest := svc.Manifest()
		index[manifest.Name] = len(statuses)
		statuses = append(statuses, serviceStatus{Name: manifest.Name, Version: manifest.Release()})
	}

	for _, report := range reports {
		i, ok := index[report.Service]
		if !ok {
			i = len(statuses)
			statuses = append(statuses, serviceStatus{Name: report.Service})
		}

		s := &statuses[i]
		s.URL = report.URL
		s.Healthy = lo.ToPtr(report.Healthy)
		s.Details = report.Details
		if report.Err != nil {
			s.Error = report.Err.Error()
		}
	}
	return statuses
}

func printYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}
