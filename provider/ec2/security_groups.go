package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
	"github.com/siderolabs/go-retry/retry"

	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/provider/internal"
)

func (p *Provider) vpcID(ctx context.Context) (string, error) {
	if p.config.VPCID != "" {
		return p.config.VPCID, nil
	}

	out, err := p.api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{{Name: aws.String("isDefault"), Values: []string{"true"}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to find the default VPC: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return "", fmt.Errorf("region %s has no default VPC, set vpc-id", p.config.Region)
	}
	return aws.ToString(out.Vpcs[0].VpcId), nil
}

func (p *Provider) findGroups(ctx context.Context, names ...string) ([]types.SecurityGroup, error) {
	vpc, err := p.vpcID(ctx)
	if err != nil {
		return nil, err
	}

	var groups []types.SecurityGroup
	paginator := ec2.NewDescribeSecurityGroupsPaginator(p.api, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			{Name: aws.String("group-name"), Values: names},
			{Name: aws.String("vpc-id"), Values: []string{vpc}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe security groups: %w", err)
		}
		groups = append(groups, page.SecurityGroups...)
	}
	return groups, nil
}

// securityGroupIDs resolves group names to IDs, in the order given.
func (p *Provider) securityGroupIDs(ctx context.Context, names ...string) ([]string, error) {
	groups, err := p.findGroups(ctx, names...)
	if err != nil {
		return nil, err
	}

	byName := lo.SliceToMap(groups, func(g types.SecurityGroup) (string, string) { return aws.ToString(g.GroupName), aws.ToString(g.GroupId) })
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("security group '%s' does not exist", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Provider) EnsureSecurityGroups(ctx context.Context, clusterName string) error {
	cidrs, err := internal.OperatorCIDRs(ctx, p.config.OperatorCIDRs)
	if err != nil {
		return err
	}

	base, clusterGroup := internal.BaseSecurityGroup, internal.ClusterSecurityGroup(clusterName)
	existing, err := p.findGroups(ctx, base, clusterGroup)
	if err != nil {
		return err
	}
	names := lo.Map(existing, func(g types.SecurityGroup, _ int) string { return aws.ToString(g.GroupName) })

	if !lo.Contains(names, base) {
		if err := p.createGroup(ctx, base, "flotilla SSH access", internal.BaseRules(cidrs)); err != nil {
			return err
		}
	}
	if !lo.Contains(names, clusterGroup) {
		if err := p.createGroup(ctx, clusterGroup, "flotilla cluster "+clusterName, internal.ClusterRules(cidrs, p.config.WebPorts)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) createGroup(ctx context.Context, name, description string, rules []internal.Rule) error {
	vpc, err := p.vpcID(ctx)
	if err != nil {
		return err
	}

	p.log.Info("Creating security group", "group", name, "vpc", vpc)
	out, err := p.api.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(description),
		VpcId:       aws.String(vpc),
	})
	if hasCode(err, codeGroupDuplicate) {
		// Created concurrently by another launch
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create security group '%s': %w", name, err)
	}

	groupID := aws.ToString(out.GroupId)
	_, err = p.api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: lo.Map(rules, func(r internal.Rule, _ int) types.IpPermission { return toPermission(r, groupID) }),
	})
	if err != nil && !hasCode(err, codePermissionExists) {
		return fmt.Errorf("failed to authorize ingress on security group '%s': %w", name, err)
	}
	return nil
}

func toPermission(rule internal.Rule, groupID string) types.IpPermission {
	permission := types.IpPermission{
		IpProtocol: aws.String(rule.Protocol),
		FromPort:   aws.Int32(int32(rule.FromPort)),
		ToPort:     aws.Int32(int32(rule.ToPort)),
	}
	if rule.Self() {
		permission.UserIdGroupPairs = []types.UserIdGroupPair{{GroupId: aws.String(groupID)}}
	} else {
		permission.IpRanges = []types.IpRange{{CidrIp: aws.String(rule.CIDR)}}
	}
	return permission
}

// DetachClusterSecurityGroup replaces the groups of every live node with the same set
// minus the cluster group, so that the group can be deleted while nodes shut down.
func (p *Provider) DetachClusterSecurityGroup(ctx context.Context, clusterName string, nodes []cluster.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	name := internal.ClusterSecurityGroup(clusterName)
	instances, err := p.describe(ctx, &ec2.DescribeInstancesInput{InstanceIds: nodeIDs(nodes)})
	if err != nil && !hasCode(err, codeInstanceNotFound) {
		return fmt.Errorf("failed to describe instances: %w", err)
	}

	var baseID string
	for _, instance := range instances {
		state := toState(instance.State)
		if state == cluster.StateTerminated || state == cluster.StateShuttingDown {
			continue
		}

		var keep []string
		for _, g := range instance.SecurityGroups {
			if aws.ToString(g.GroupName) != name {
				keep = append(keep, aws.ToString(g.GroupId))
			}
		}
		if len(keep) == len(instance.SecurityGroups) {
			continue
		}
		if len(keep) == 0 {
			// An instance needs at least one group
			if baseID == "" {
				ids, err := p.securityGroupIDs(ctx, internal.BaseSecurityGroup)
				if err != nil {
					return err
				}
				baseID = ids[0]
			}
			keep = []string{baseID}
		}

		_, err := p.api.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
			InstanceId: instance.InstanceId,
			Groups:     keep,
		})
		if err != nil && !hasCode(err, codeInstanceNotFound) {
			return fmt.Errorf("failed to detach security group from instance %s: %w", aws.ToString(instance.InstanceId), err)
		}
	}
	return nil
}

// DeleteClusterSecurityGroup retries while terminating instances still reference the group.
func (p *Provider) DeleteClusterSecurityGroup(ctx context.Context, clusterName string) error {
	name := internal.ClusterSecurityGroup(clusterName)
	groups, err := p.findGroups(ctx, name)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}
	groupID := groups[0].GroupId

	return internal.WaitFor(ctx, p.config.Timeouts, "security group "+name+" to be deleted", func(ctx context.Context) (bool, error) {
		_, err := p.api.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: groupID})
		switch {
		case err == nil, hasCode(err, codeGroupNotFound):
			return true, nil
		case hasCode(err, codeDependency):
			return false, retry.ExpectedError(err)
		default:
			return false, err
		}
	})
}
