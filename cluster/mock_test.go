package cluster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/gammadia/flotilla/remote"
	"github.com/gammadia/flotilla/services"
)

// --- Mock provider ---

type mockInstance struct {
	node Node
	tags map[string]string
}

type mockProvider struct {
	mu        sync.Mutex
	instances []*mockInstance
	calls     []string
	starts    int

	// createFunc can fail a CreateNodes call, after nodes were created if it wants to
	createFunc func(spec NodeSpec, count int) error
}

func newMockProvider() *mockProvider {
	return &mockProvider{}
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *mockProvider) getCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *mockProvider) snapshot(i *mockInstance) Node {
	node := i.node
	node.Cluster = i.tags[TagCluster]
	node.Role = Role(i.tags[TagRole])
	if node.Role == "" {
		node.Role = RoleWorker
	}
	return node
}

func (p *mockProvider) FindNodes(_ context.Context, clusterName string) ([]Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var nodes []Node
	for _, i := range p.instances {
		if i.node.State == StateTerminated || i.tags[TagCluster] == "" {
			continue
		}
		if clusterName != "" && i.tags[TagCluster] != clusterName {
			continue
		}
		nodes = append(nodes, p.snapshot(i))
	}
	return nodes, nil
}

func (p *mockProvider) EnsureSecurityGroups(_ context.Context, clusterName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("ensure-security-groups %s", clusterName)
	return nil
}

// add registers an existing node, used to seed clusters.
func (p *mockProvider) add(cluster string, role Role, state State, interruptible bool) Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(NodeSpec{ClusterName: cluster, Role: role, Interruptible: interruptible}, state, true)
}

func (p *mockProvider) addLocked(spec NodeSpec, state State, tagged bool) Node {
	n := len(p.instances) + 1
	instance := &mockInstance{
		node: Node{
			ID:            fmt.Sprintf("i-%03d", n),
			State:         state,
			PrivateIP:     fmt.Sprintf("10.0.0.%d", n),
			Interruptible: spec.Interruptible,
			LaunchedAt:    time.Date(2026, 1, 1, 0, 0, n, 0, time.UTC),
		},
		tags: map[string]string{},
	}
	if state == StateRunning {
		instance.node.PublicIP = fmt.Sprintf("203.0.113.%d", n)
	}
	if tagged {
		instance.tags = spec.Tags()
	}
	p.instances = append(p.instances, instance)
	return p.snapshot(instance)
}

func (p *mockProvider) CreateNodes(_ context.Context, spec NodeSpec, count int) ([]Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("create %s %d", spec.Role, count)

	var nodes []Node
	for i := 0; i < count; i++ {
		nodes = append(nodes, p.addLocked(spec, StateRunning, false))
	}

	if p.createFunc != nil {
		if err := p.createFunc(spec, count); err != nil {
			return nodes, err
		}
	}
	return nodes, nil
}

func (p *mockProvider) find(id string) *mockInstance {
	i, _ := lo.Find(p.instances, func(i *mockInstance) bool { return i.node.ID == id })
	return i
}

func (p *mockProvider) TagNodes(_ context.Context, nodes []Node, tags map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range nodes {
		for k, v := range tags {
			p.find(n.ID).tags[k] = v
		}
	}
	return nil
}

func (p *mockProvider) setState(op string, nodes []Node, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("%s %s", op, strings.Join(nodeIDs(nodes), ","))
	for _, n := range nodes {
		i := p.find(n.ID)
		i.node.State = state
		i.node.PublicIP = ""
		if state == StateRunning {
			// Public addresses change across stop and start
			p.starts++
			i.node.PublicIP = fmt.Sprintf("198.51.100.%d", p.starts)
		}
	}
}

func (p *mockProvider) StartNodes(_ context.Context, nodes []Node) error {
	p.setState("start", nodes, StateRunning)
	return nil
}

func (p *mockProvider) StopNodes(_ context.Context, nodes []Node) error {
	p.setState("stop", nodes, StateStopped)
	return nil
}

func (p *mockProvider) TerminateNodes(_ context.Context, nodes []Node) error {
	p.setState("terminate", nodes, StateTerminated)
	return nil
}

func (p *mockProvider) WaitForState(_ context.Context, nodes []Node, state State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range nodes {
		if got := p.find(n.ID).node.State; got != state {
			return fmt.Errorf("node %s is %s, not %s", n.ID, got, state)
		}
	}
	return nil
}

func (p *mockProvider) DetachClusterSecurityGroup(_ context.Context, clusterName string, nodes []Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("detach-security-group %s %s", clusterName, strings.Join(nodeIDs(nodes), ","))
	return nil
}

func (p *mockProvider) DeleteClusterSecurityGroup(_ context.Context, clusterName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("delete-security-group %s", clusterName)
	return nil
}

func (p *mockProvider) states() map[string]State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.SliceToMap(p.instances, func(i *mockInstance) (string, State) { return i.node.ID, i.node.State })
}

func (p *mockProvider) tagsOf(id string) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(id).tags
}

// --- Mock dialer and session ---

const storageLayout = `{"root": "/media/root", "ephemeral": ["/media/ephemeral0"]}`

type mockSession struct {
	host   string
	dialer *mockDialer
}

type mockDialer struct {
	mu       sync.Mutex
	commands map[string][]string
	files    map[string]map[string]string
	puts     map[string][]string
	// run answers commands not handled by default, nil means success with no output
	run func(host, command string) (string, error)
	// dialFunc can refuse a connection
	dialFunc func(host string) error
}

func newMockDialer() *mockDialer {
	return &mockDialer{
		commands: map[string][]string{},
		files:    map[string]map[string]string{},
		puts:     map[string][]string{},
	}
}

func (d *mockDialer) Dial(_ context.Context, host string) (remote.Session, error) {
	if d.dialFunc != nil {
		if err := d.dialFunc(host); err != nil {
			return nil, err
		}
	}
	return &mockSession{host: host, dialer: d}, nil
}

func (d *mockDialer) commandsOn(host string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands[host]...)
}

func (d *mockDialer) filesOn(host string) map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.files[host]
}

func (s *mockSession) Host() string { return s.host }

func (s *mockSession) Run(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d := s.dialer
	d.mu.Lock()
	d.commands[s.host] = append(d.commands[s.host], command)
	files := d.files[s.host]
	d.mu.Unlock()

	switch {
	case strings.Contains(command, "flotilla-setup-storage.sh"):
		return "formatting nothing\n" + storageLayout + "\n", nil
	case command == "cat "+privateKeyPath:
		return files[privateKeyPath], nil
	case command == "cat "+publicKeyPath:
		return files[publicKeyPath], nil
	case strings.HasPrefix(command, "cat "+servicesPath):
		return files[servicesPath], nil
	}

	if d.run != nil {
		return d.run(s.host, command)
	}
	return "", nil
}

func (s *mockSession) WriteFile(ctx context.Context, content []byte, remotePath string, _ os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := s.dialer
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.files[s.host] == nil {
		d.files[s.host] = map[string]string{}
	}
	d.files[s.host][remotePath] = string(content)
	return nil
}

func (s *mockSession) PutFile(_ context.Context, localPath, remoteDir string) error {
	d := s.dialer
	d.mu.Lock()
	defer d.mu.Unlock()
	d.puts[s.host] = append(d.puts[s.host], localPath+" -> "+remoteDir)
	return nil
}

func (s *mockSession) Close() error { return nil }

// --- Mock service ---

type mockService struct {
	name    string
	version string

	mu         sync.Mutex
	calls      []string
	masterInfo []services.ClusterInfo
	installErr func(host string) error
	health     services.Health
	healthErr  error
}

func (s *mockService) Name() string { return s.name }

func (s *mockService) Manifest() services.Manifest {
	return services.Manifest{Name: s.name, Source: services.Source{Version: s.version}}
}

func (s *mockService) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *mockService) getCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *mockService) Install(ctx context.Context, session remote.Session, _ services.ClusterInfo) error {
	s.record("install " + session.Host())
	if _, err := session.Run(ctx, "install "+s.name); err != nil {
		return err
	}
	if s.installErr != nil {
		return s.installErr(session.Host())
	}
	return nil
}

func (s *mockService) Configure(ctx context.Context, session remote.Session, _ services.ClusterInfo) error {
	s.record("configure " + session.Host())
	_, err := session.Run(ctx, "configure "+s.name)
	return err
}

func (s *mockService) ConfigureMaster(_ context.Context, session remote.Session, c services.ClusterInfo) error {
	s.record("configure-master " + session.Host())
	s.mu.Lock()
	s.masterInfo = append(s.masterInfo, c)
	s.mu.Unlock()
	return nil
}

func (s *mockService) HealthCheck(_ context.Context, leaderAddr string) (services.Health, error) {
	s.record("health " + leaderAddr)
	return s.health, s.healthErr
}

// --- Helpers ---

type fixture struct {
	provider *mockProvider
	dialer   *mockDialer
	storage  *mockService
	manager  *Manager

	mu     sync.Mutex
	events []Event
	// built are the services created from a leader manifest that matched no configured one
	built []*mockService
}

func newFixture(extra ...services.Service) *fixture {
	f := &fixture{
		provider: newMockProvider(),
		dialer:   newMockDialer(),
		storage:  &mockService{name: "storage"},
	}

	config := DefaultConfig()
	config.Provider = f.provider
	config.Dialer = f.dialer
	config.Services = append([]services.Service{f.storage}, extra...)
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	config.PollInterval = time.Millisecond
	config.SettleTimeout = time.Second
	config.SettleDelay = 0
	config.BuildServices = f.buildServices
	config.OnEvent = func(e Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
	}

	manager, err := NewManager(config)
	if err != nil {
		panic(err)
	}
	f.manager = manager
	return f
}

// buildServices reuses the configured mock of the same version, like a real build would
// produce an equivalent service.
func (f *fixture) buildServices(manifests []services.Manifest) ([]services.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return lo.Map(manifests, func(m services.Manifest, _ int) services.Service {
		for _, svc := range f.manager.config.Services {
			if configured := svc.(*mockService); configured.name == m.Name && configured.version == m.Version {
				return configured
			}
		}
		built := &mockService{name: m.Name, version: m.Version}
		f.built = append(f.built, built)
		return built
	}), nil
}

func (f *fixture) builtServices() []*mockService {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mockService(nil), f.built...)
}

func (f *fixture) nodeStates(node string) []NodeState {
	f.mu.Lock()
	defer f.mu.Unlock()

	var states []NodeState
	for _, e := range f.events {
		if changed, ok := e.(EventNodeStateChanged); ok && changed.Node == node {
			states = append(states, changed.State)
		}
	}
	return states
}
