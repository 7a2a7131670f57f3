package ec2

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
	"github.com/siderolabs/go-retry/retry"

	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/provider/internal"
)

// liveStates are the instance states listed by FindNodes.
var liveStates = []string{"pending", "running", "stopping", "stopped", "shutting-down"}

type Provider struct {
	config Config
	api    ec2API
	log    *slog.Logger
}

// Provider implements cluster.Provider
var _ cluster.Provider = (*Provider)(nil)

func New(ctx context.Context, config Config) (*Provider, error) {
	if err := Validate(config); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(config.Profile))
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return newProvider(config, ec2.NewFromConfig(cfg)), nil
}

func newProvider(config Config, api ec2API) *Provider {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{config: config, api: api, log: logger.With(slog.String("provider", "ec2"), slog.String("region", config.Region))}
}

func (p *Provider) Name() string {
	return "ec2"
}

func (p *Provider) describe(ctx context.Context, input *ec2.DescribeInstancesInput) ([]types.Instance, error) {
	var instances []types.Instance

	paginator := ec2.NewDescribeInstancesPaginator(p.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, reservation := range page.Reservations {
			instances = append(instances, reservation.Instances...)
		}
	}
	return instances, nil
}

func (p *Provider) FindNodes(ctx context.Context, clusterName string) ([]cluster.Node, error) {
	filters := []types.Filter{
		{Name: aws.String("instance-state-name"), Values: liveStates},
	}
	if clusterName == "" {
		filters = append(filters, types.Filter{Name: aws.String("tag-key"), Values: []string{cluster.TagCluster}})
	} else {
		filters = append(filters, types.Filter{Name: aws.String("tag:" + cluster.TagCluster), Values: []string{clusterName}})
	}

	instances, err := p.describe(ctx, &ec2.DescribeInstancesInput{Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances: %w", err)
	}

	return lo.Map(instances, func(i types.Instance, _ int) cluster.Node { return toNode(i) }), nil
}

func (p *Provider) CreateNodes(ctx context.Context, spec cluster.NodeSpec, count int) ([]cluster.Node, error) {
	groups, err := p.securityGroupIDs(ctx, internal.BaseSecurityGroup, internal.ClusterSecurityGroup(spec.ClusterName))
	if err != nil {
		return nil, err
	}

	input := &ec2.RunInstancesInput{
		ImageId:          aws.String(p.config.AMI),
		InstanceType:     types.InstanceType(p.config.InstanceType),
		KeyName:          aws.String(p.config.KeyName),
		MinCount:         aws.Int32(int32(count)),
		MaxCount:         aws.Int32(int32(count)),
		SecurityGroupIds: groups,
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         toTags(spec.Tags()),
		}},
	}
	if p.config.SubnetID != "" {
		input.SubnetId = aws.String(p.config.SubnetID)
	}
	if p.config.InstanceProfile != "" {
		input.IamInstanceProfile = &types.IamInstanceProfileSpecification{Name: aws.String(p.config.InstanceProfile)}
	}
	if p.config.RootVolumeSize > 0 {
		input.BlockDeviceMappings = []types.BlockDeviceMapping{{
			DeviceName: aws.String("/dev/xvda"),
			Ebs: &types.EbsBlockDevice{
				VolumeSize:          aws.Int32(p.config.RootVolumeSize),
				VolumeType:          types.VolumeTypeGp3,
				DeleteOnTermination: aws.Bool(true),
			},
		}}
	}
	if spec.Interruptible {
		spot := &types.SpotMarketOptions{
			SpotInstanceType:             types.SpotInstanceTypeOneTime,
			InstanceInterruptionBehavior: types.InstanceInterruptionBehaviorTerminate,
		}
		if p.config.SpotPrice != "" {
			spot.MaxPrice = aws.String(p.config.SpotPrice)
		}
		input.InstanceMarketOptions = &types.InstanceMarketOptionsRequest{
			MarketType:  types.MarketTypeSpot,
			SpotOptions: spot,
		}
	}

	out, err := p.api.RunInstances(ctx, input)
	if err != nil {
		if spec.Interruptible && hasCode(err, codeInsufficientSpot, codeSpotMaxPriceTooLow) {
			return nil, fmt.Errorf("no spot capacity for %d %s instances, retry without spot: %w", count, p.config.InstanceType, err)
		}
		return nil, fmt.Errorf("failed to run instances: %w", err)
	}

	p.log.Debug("Instances requested", "role", spec.Role, "instances", len(out.Instances), "spot", spec.Interruptible)
	return lo.Map(out.Instances, func(i types.Instance, _ int) cluster.Node { return toNode(i) }), nil
}

// TagNodes retries while freshly created instances are not yet known to the tagging API.
func (p *Provider) TagNodes(ctx context.Context, nodes []cluster.Node, tags map[string]string) error {
	if len(nodes) == 0 {
		return nil
	}

	return internal.WaitFor(ctx, p.config.Timeouts, "instances to be tagged", func(ctx context.Context) (bool, error) {
		_, err := p.api.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: nodeIDs(nodes),
			Tags:      toTags(tags),
		})
		if hasCode(err, codeInstanceNotFound) {
			return false, retry.ExpectedError(err)
		}
		return err == nil, err
	})
}

func (p *Provider) StartNodes(ctx context.Context, nodes []cluster.Node) error {
	if _, err := p.api.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: nodeIDs(nodes)}); err != nil {
		return fmt.Errorf("failed to start instances: %w", err)
	}
	return nil
}

func (p *Provider) StopNodes(ctx context.Context, nodes []cluster.Node) error {
	if _, err := p.api.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: nodeIDs(nodes)}); err != nil {
		return fmt.Errorf("failed to stop instances: %w", err)
	}
	return nil
}

func (p *Provider) TerminateNodes(ctx context.Context, nodes []cluster.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	_, err := p.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: nodeIDs(nodes)})
	if err != nil && !hasCode(err, codeInstanceNotFound) {
		return fmt.Errorf("failed to terminate instances: %w", err)
	}
	return nil
}

func (p *Provider) WaitForState(ctx context.Context, nodes []cluster.Node, state cluster.State) error {
	// An empty id list would describe every instance of the account
	if len(nodes) == 0 {
		return nil
	}
	ids := nodeIDs(nodes)

	return internal.WaitFor(ctx, p.config.Timeouts, fmt.Sprintf("%d instances to be %s", len(nodes), state), func(ctx context.Context) (bool, error) {
		instances, err := p.describe(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids})
		if hasCode(err, codeInstanceNotFound) {
			// Listings lag behind creation
			return false, retry.ExpectedError(err)
		}
		if err != nil {
			return false, err
		}

		for _, instance := range instances {
			got := toState(instance.State)
			if got == state {
				continue
			}
			if state == cluster.StateRunning && got == cluster.StateTerminated {
				reason := ""
				if instance.StateReason != nil {
					reason = aws.ToString(instance.StateReason.Message)
				}
				return false, fmt.Errorf("instance %s terminated while starting: %s", aws.ToString(instance.InstanceId), reason)
			}
			return false, nil
		}
		return len(instances) == len(ids) || state == cluster.StateTerminated, nil
	})
}

func nodeIDs(nodes []cluster.Node) []string {
	return lo.Map(nodes, func(n cluster.Node, _ int) string { return n.ID })
}
