package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/gammadia/flotilla/parallel"
	"github.com/gammadia/flotilla/remote"
	"github.com/gammadia/flotilla/services"
)

const (
	privateKeyPath = ".ssh/id_ed25519"
	publicKeyPath  = ".ssh/id_ed25519.pub"
	sshConfigPath  = ".ssh/config"
	servicesDir    = ".flotilla"
	servicesPath   = servicesDir + "/services.yaml"

	// Nodes reach each other by private address which changes on every start
	intraClusterSSHConfig = "Host *\n  StrictHostKeyChecking no\n  UserKnownHostsFile /dev/null\n  LogLevel ERROR\n"
)

// provisioner brings nodes of one cluster to the ready state.
type provisioner struct {
	m       *Manager
	cluster *Cluster
	keys    *remote.KeyPair
	// restart skips the one-time steps of a node that was provisioned before
	restart bool
}

// provisionAll provisions nodes concurrently and returns their storage layouts, by node ID.
func (p *provisioner) provisionAll(ctx context.Context, nodes []Node) (map[string]services.StorageDirs, error) {
	layouts, err := parallel.Map(ctx, nodes, p.provision, p.m.parallelOptions())

	storage := make(map[string]services.StorageDirs, len(nodes))
	for i, node := range nodes {
		storage[node.ID] = layouts[i]
	}
	return storage, err
}

func (p *provisioner) provision(ctx context.Context, node Node) (storage services.StorageDirs, err error) {
	log := p.m.log.With(slog.String("cluster", p.cluster.Name), slog.String("node", node.ID), slog.String("host", node.Address()))
	transition := func(state NodeState) {
		log.Debug("Node state changed", "state", state)
		p.m.emit(EventNodeStateChanged{Cluster: p.cluster.Name, Node: node.ID, Host: node.Address(), State: state})
	}

	defer func() {
		if err != nil {
			log.Warn("Node provisioning failed", "error", err)
			p.m.emit(EventNodeStateChanged{Cluster: p.cluster.Name, Node: node.ID, Host: node.Address(), State: NodeStateFailed, Err: err})
			err = fmt.Errorf("node %s (%s): %w", node.ID, node.Address(), err)
		}
	}()

	transition(NodeStateCreated)

	session, err := p.m.config.Dialer.Dial(ctx, node.Address())
	if err != nil {
		return storage, err
	}
	defer session.Close()
	transition(NodeStateSSHReachable)

	if !p.restart {
		if err := installKeys(ctx, session, p.keys); err != nil {
			return storage, err
		}
		if node.Role == RoleLeader {
			if err := saveServices(ctx, session, p.cluster.Services); err != nil {
				return storage, err
			}
		}
		transition(NodeStateKeysInstalled)
	}

	if err := ctx.Err(); err != nil {
		return storage, err
	}
	storage, err = services.DiscoverStorage(ctx, session, p.m.config.RootDir)
	if err != nil {
		return storage, err
	}
	transition(NodeStateStorageConfigured)

	info := p.cluster.Info(storage, p.m.config.JavaVersion)

	if !p.restart {
		if err := ctx.Err(); err != nil {
			return storage, err
		}
		if err := services.EnsureJava(ctx, session, p.m.config.JavaVersion); err != nil {
			return storage, err
		}
		transition(NodeStateJavaEnsured)

		for _, service := range p.cluster.Services {
			if err := ctx.Err(); err != nil {
				return storage, err
			}
			log.Debug("Installing service", "service", service.Name())
			if err := service.Install(ctx, session, info); err != nil {
				return storage, err
			}
		}
		transition(NodeStateServicesInstalled)
	}

	for _, service := range p.cluster.Services {
		if err := ctx.Err(); err != nil {
			return storage, err
		}
		log.Debug("Configuring service", "service", service.Name())
		if err := service.Configure(ctx, session, info); err != nil {
			return storage, err
		}
	}
	transition(NodeStateServicesConfigured)

	transition(NodeStateReady)
	return storage, nil
}

func installKeys(ctx context.Context, s remote.Session, keys *remote.KeyPair) error {
	if keys == nil {
		return fmt.Errorf("no cluster key pair to install")
	}

	if _, err := s.Run(ctx, "mkdir -p ~/.ssh && chmod 700 ~/.ssh"); err != nil {
		return err
	}
	if err := s.WriteFile(ctx, keys.PrivateKey, privateKeyPath, 0o600); err != nil {
		return err
	}
	if err := s.WriteFile(ctx, keys.PublicKey, publicKeyPath, 0o644); err != nil {
		return err
	}
	if err := s.WriteFile(ctx, []byte(intraClusterSSHConfig), sshConfigPath, 0o600); err != nil {
		return err
	}

	authorized := shellescape.Quote(strings.TrimSpace(string(keys.PublicKey)))
	_, err := s.Run(ctx, fmt.Sprintf(
		"grep -qxF %[1]s ~/.ssh/authorized_keys || echo %[1]s >> ~/.ssh/authorized_keys",
		authorized,
	))
	return err
}

// fetchKeys reads the cluster key pair back from the leader.
func fetchKeys(ctx context.Context, s remote.Session) (*remote.KeyPair, error) {
	private, err := s.Run(ctx, "cat "+privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster private key: %w", err)
	}
	public, err := s.Run(ctx, "cat "+publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster public key: %w", err)
	}
	if strings.TrimSpace(private) == "" || strings.TrimSpace(public) == "" {
		return nil, fmt.Errorf("cluster key pair on leader '%s' is empty", s.Host())
	}

	return &remote.KeyPair{PrivateKey: []byte(private), PublicKey: []byte(public)}, nil
}

// saveServices records on the leader the services the cluster is launched with.
func saveServices(ctx context.Context, s remote.Session, svcs []services.Service) error {
	data, err := services.MarshalManifests(svcs)
	if err != nil {
		return err
	}
	if _, err := s.Run(ctx, "mkdir -p "+servicesDir); err != nil {
		return err
	}
	if err := s.WriteFile(ctx, data, servicesPath, 0o644); err != nil {
		return fmt.Errorf("failed to write service manifest: %w", err)
	}
	return nil
}

// loadServices builds the services recorded on the leader. Leaders launched before the
// manifest existed fall back to the configured services.
func (m *Manager) loadServices(ctx context.Context, s remote.Session) ([]services.Service, error) {
	out, err := s.Run(ctx, "cat "+servicesPath+" 2>/dev/null || true")
	if err != nil {
		return nil, fmt.Errorf("failed to read service manifest: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		m.log.Warn("No service manifest on leader, using configured services", "host", s.Host())
		return m.config.Services, nil
	}

	manifests, err := services.UnmarshalManifests([]byte(out))
	if err != nil {
		return nil, err
	}
	return m.config.BuildServices(manifests)
}

// leaderServices dials the leader of c and reads its services.
func (m *Manager) leaderServices(ctx context.Context, c *Cluster) ([]services.Service, error) {
	if c.Leader == nil {
		return nil, fmt.Errorf("cluster '%s' has no leader", c.Name)
	}

	session, err := m.config.Dialer.Dial(ctx, c.Leader.Address())
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return m.loadServices(ctx, session)
}

// startServices starts every service from the leader, in declared order.
func (m *Manager) startServices(ctx context.Context, c *Cluster) error {
	if c.Leader == nil {
		return fmt.Errorf("cluster '%s' has no leader", c.Name)
	}

	session, err := m.config.Dialer.Dial(ctx, c.Leader.Address())
	if err != nil {
		return err
	}
	defer session.Close()

	info := c.Info(c.Storage, m.config.JavaVersion)
	for _, service := range c.Services {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.log.Info("Starting service", "cluster", c.Name, "service", service.Name())
		if err := service.ConfigureMaster(ctx, session, info); err != nil {
			return fmt.Errorf("failed to start %s: %w", service.Name(), err)
		}
		m.emit(EventServiceStarted{Cluster: c.Name, Service: service.Name()})
	}
	return nil
}

// reconfigureLeader rewrites the leader's configuration after the worker set changed,
// then restarts the services.
func (m *Manager) reconfigureLeader(ctx context.Context, c *Cluster) error {
	if c.Leader == nil {
		return fmt.Errorf("cluster '%s' has no leader", c.Name)
	}

	session, err := m.config.Dialer.Dial(ctx, c.Leader.Address())
	if err != nil {
		return err
	}
	defer session.Close()

	if c.Services == nil {
		if c.Services, err = m.loadServices(ctx, session); err != nil {
			return err
		}
	}

	storage, err := services.DiscoverStorage(ctx, session, m.config.RootDir)
	if err != nil {
		return err
	}
	c.Storage = storage

	info := c.Info(storage, m.config.JavaVersion)
	for _, service := range c.Services {
		if err := service.Configure(ctx, session, info); err != nil {
			return err
		}
	}

	return m.startServices(ctx, c)
}
