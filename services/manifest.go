package services

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Manifest is what a cluster remembers about one of its services: enough to build the
// same service again, whatever the local configuration says by then.
type Manifest struct {
	Name              string `yaml:"name"`
	Source            `yaml:",inline"`
	SHA512            string   `yaml:"sha512,omitempty"`
	Replication       int      `yaml:"replication,omitempty"`
	ExecutorInstances int      `yaml:"executor-instances,omitempty"`
	BuildCommands     []string `yaml:"build-commands,omitempty"`
}

// Release is the version the service runs, or the commit it was built from.
func (m Manifest) Release() string {
	if m.GitCommit != "" {
		return m.GitRepository + "@" + m.GitCommit
	}
	return m.Version
}

func (m Manifest) String() string {
	return m.Name + " " + m.Release()
}

func (st *Storage) Manifest() Manifest {
	return Manifest{
		Name:        st.Name(),
		Source:      st.Source,
		SHA512:      st.SHA512,
		Replication: st.Replication,
	}
}

func (cp *Compute) Manifest() Manifest {
	return Manifest{
		Name:              cp.Name(),
		Source:            cp.Source,
		SHA512:            cp.SHA512,
		ExecutorInstances: cp.ExecutorInstances,
		BuildCommands:     cp.BuildCommands,
	}
}

// Build creates the services described by manifests, in order. Settings left empty keep
// their defaults.
func Build(manifests []Manifest) ([]Service, error) {
	out := make([]Service, 0, len(manifests))
	for _, m := range manifests {
		switch m.Name {
		case "storage":
			storage, err := NewStorage(m.Source)
			if err != nil {
				return nil, err
			}
			storage.SHA512 = m.SHA512
			if m.Replication > 0 {
				storage.Replication = m.Replication
			}
			out = append(out, storage)

		case "compute":
			compute, err := NewCompute(m.Source)
			if err != nil {
				return nil, err
			}
			compute.SHA512 = m.SHA512
			compute.ExecutorInstances = m.ExecutorInstances
			if len(m.BuildCommands) > 0 {
				compute.BuildCommands = m.BuildCommands
			}
			out = append(out, compute)

		default:
			return nil, fmt.Errorf("unknown service '%s'", m.Name)
		}
	}
	return out, nil
}

// MarshalManifests encodes the manifests of svcs.
func MarshalManifests(svcs []Service) ([]byte, error) {
	manifests := make([]Manifest, 0, len(svcs))
	for _, svc := range svcs {
		manifests = append(manifests, svc.Manifest())
	}
	return yaml.Marshal(manifests)
}

func UnmarshalManifests(data []byte) ([]Manifest, error) {
	var manifests []Manifest
	if err := yaml.Unmarshal(data, &manifests); err != nil {
		return nil, fmt.Errorf("failed to parse service manifest: %w", err)
	}
	return manifests, nil
}
