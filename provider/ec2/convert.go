package ec2

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/provider/internal"
)

func toState(state *types.InstanceState) cluster.State {
	if state == nil {
		return cluster.StatePending
	}
	return cluster.State(state.Name)
}

func toNode(instance types.Instance) cluster.Node {
	tags := make(map[string]string, len(instance.Tags))
	for _, tag := range instance.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	groups := make([]string, 0, len(instance.SecurityGroups))
	for _, g := range instance.SecurityGroups {
		groups = append(groups, aws.ToString(g.GroupName))
	}

	return cluster.Node{
		ID:             aws.ToString(instance.InstanceId),
		Cluster:        tags[cluster.TagCluster],
		Role:           internal.RoleFromTags(tags),
		State:          toState(instance.State),
		PublicIP:       aws.ToString(instance.PublicIpAddress),
		PrivateIP:      aws.ToString(instance.PrivateIpAddress),
		SecurityGroups: groups,
		Interruptible:  instance.InstanceLifecycle == types.InstanceLifecycleTypeSpot,
		LaunchedAt:     aws.ToTime(instance.LaunchTime),
	}
}

// toTags converts tags in key order.
func toTags(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Tag, 0, len(tags))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}
