package openstack

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/secgroups"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/samber/lo"
	"github.com/siderolabs/go-retry/retry"

	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/provider/internal"
)

type Provider struct {
	config Config
	api    computeAPI
	log    *slog.Logger
}

// Provider implements cluster.Provider
var _ cluster.Provider = (*Provider)(nil)

// New authenticates against OpenStack with the usual OS_* environment variables.
func New(config Config) (*Provider, error) {
	if err := Validate(config); err != nil {
		return nil, err
	}

	opts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth options from env: %w", err)
	}

	provider, err := openstack.AuthenticatedClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}

	region := config.Region
	if region == "" {
		region = os.Getenv("OS_REGION_NAME")
	}
	client, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{Region: region})
	if err != nil {
		return nil, fmt.Errorf("failed to get compute client: %w", err)
	}

	return newProvider(config, &gopherAPI{client: client}), nil
}

func newProvider(config Config, api computeAPI) *Provider {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{config: config, api: api, log: logger.With(slog.String("provider", "openstack"))}
}

func (p *Provider) Name() string {
	return "openstack"
}

func (p *Provider) FindNodes(_ context.Context, clusterName string) ([]cluster.Node, error) {
	all, err := p.api.ListServers()
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	var nodes []cluster.Node
	for _, server := range all {
		name, ok := server.Metadata[cluster.TagCluster]
		if !ok || (clusterName != "" && name != clusterName) {
			continue
		}
		node := toNode(server)
		if node.State == cluster.StateTerminated {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (p *Provider) EnsureSecurityGroups(ctx context.Context, clusterName string) error {
	cidrs, err := internal.OperatorCIDRs(ctx, p.config.OperatorCIDRs)
	if err != nil {
		return err
	}

	groups, err := p.api.ListSecurityGroups()
	if err != nil {
		return fmt.Errorf("failed to list security groups: %w", err)
	}

	if err := p.ensureGroup(groups, internal.BaseSecurityGroup, "flotilla SSH access", internal.BaseRules(cidrs)); err != nil {
		return err
	}
	return p.ensureGroup(groups, internal.ClusterSecurityGroup(clusterName), "flotilla cluster "+clusterName, internal.ClusterRules(cidrs, p.config.WebPorts))
}

func (p *Provider) ensureGroup(existing []secgroups.SecurityGroup, name, description string, rules []internal.Rule) error {
	if _, found := lo.Find(existing, func(g secgroups.SecurityGroup) bool { return g.Name == name }); found {
		return nil
	}

	p.log.Info("Creating security group", "group", name)
	group, err := p.api.CreateSecurityGroup(name, description)
	if err != nil {
		return fmt.Errorf("failed to create security group '%s': %w", name, err)
	}

	for _, rule := range rules {
		opts := secgroups.CreateRuleOpts{
			ParentGroupID: group.ID,
			FromPort:      rule.FromPort,
			ToPort:        rule.ToPort,
			IPProtocol:    rule.Protocol,
			CIDR:          rule.CIDR,
		}
		if rule.Self() {
			opts.FromGroupID = group.ID
		}
		if err := p.api.CreateRule(opts); err != nil {
			return fmt.Errorf("failed to add rule to security group '%s': %w", name, err)
		}
	}
	return nil
}

func (p *Provider) CreateNodes(_ context.Context, spec cluster.NodeSpec, count int) ([]cluster.Node, error) {
	if spec.Interruptible {
		return nil, fmt.Errorf("openstack does not offer interruptible capacity")
	}

	networks := lo.Map(p.config.Networks, func(id string, _ int) servers.Network { return servers.Network{UUID: id} })

	var nodes []cluster.Node
	for i := 0; i < count; i++ {
		server, err := p.api.CreateServer(keypairs.CreateOptsExt{
			CreateOptsBuilder: servers.CreateOpts{
				Name:           spec.Tags()[cluster.TagName],
				ImageRef:       p.config.Image,
				FlavorRef:      p.config.Flavor,
				Networks:       networks,
				SecurityGroups: []string{internal.BaseSecurityGroup, internal.ClusterSecurityGroup(spec.ClusterName)},
				Metadata:       spec.Tags(),
			},
			KeyName: p.config.KeyName,
		})
		if err != nil {
			return nodes, fmt.Errorf("failed to create server: %w", err)
		}
		p.log.Debug("Created server", "server", server.ID, "role", spec.Role)
		nodes = append(nodes, toNode(*server))
	}
	return nodes, nil
}

func (p *Provider) TagNodes(_ context.Context, nodes []cluster.Node, tags map[string]string) error {
	for _, node := range nodes {
		if err := p.api.UpdateMetadata(node.ID, tags); err != nil {
			return fmt.Errorf("failed to tag server '%s': %w", node.ID, err)
		}
	}
	return nil
}

func (p *Provider) each(nodes []cluster.Node, verb string, fn func(id string) error) error {
	for _, node := range nodes {
		if err := fn(node.ID); err != nil {
			return fmt.Errorf("failed to %s server '%s': %w", verb, node.ID, err)
		}
	}
	return nil
}

func (p *Provider) StartNodes(_ context.Context, nodes []cluster.Node) error {
	return p.each(nodes, "start", p.api.StartServer)
}

func (p *Provider) StopNodes(_ context.Context, nodes []cluster.Node) error {
	return p.each(nodes, "stop", p.api.StopServer)
}

func (p *Provider) TerminateNodes(_ context.Context, nodes []cluster.Node) error {
	return p.each(nodes, "delete", func(id string) error {
		if err := p.api.DeleteServer(id); err != nil && !isNotFound(err) {
			return err
		}
		return nil
	})
}

func (p *Provider) WaitForState(ctx context.Context, nodes []cluster.Node, state cluster.State) error {
	pending := nodeIDs(nodes)

	return internal.WaitFor(ctx, p.config.Timeouts, fmt.Sprintf("%d servers to be %s", len(nodes), state), func(context.Context) (bool, error) {
		var remaining []string
		for _, id := range pending {
			server, err := p.api.GetServer(id)
			if isNotFound(err) {
				if state == cluster.StateTerminated {
					continue
				}
				// Freshly created servers can briefly be unknown
				return false, retry.ExpectedError(err)
			}
			if err != nil {
				return false, err
			}

			got := toState(server.Status)
			if got == stateError {
				return false, fmt.Errorf("server '%s' is in error: %s", id, server.Fault.Message)
			}
			if got != state {
				remaining = append(remaining, id)
			}
		}

		pending = remaining
		return len(pending) == 0, nil
	})
}

func (p *Provider) DetachClusterSecurityGroup(_ context.Context, clusterName string, nodes []cluster.Node) error {
	group := internal.ClusterSecurityGroup(clusterName)
	return p.each(nodes, "detach security group from", func(id string) error {
		if err := p.api.RemoveServerFromGroup(id, group); err != nil && !isNotFound(err) {
			return err
		}
		return nil
	})
}

func (p *Provider) DeleteClusterSecurityGroup(_ context.Context, clusterName string) error {
	groups, err := p.api.ListSecurityGroups()
	if err != nil {
		return fmt.Errorf("failed to list security groups: %w", err)
	}

	name := internal.ClusterSecurityGroup(clusterName)
	group, found := lo.Find(groups, func(g secgroups.SecurityGroup) bool { return g.Name == name })
	if !found {
		return nil
	}
	if err := p.api.DeleteSecurityGroup(group.ID); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete security group '%s': %w", name, err)
	}
	return nil
}

func nodeIDs(nodes []cluster.Node) []string {
	return lo.Map(nodes, func(n cluster.Node, _ int) string { return n.ID })
}
