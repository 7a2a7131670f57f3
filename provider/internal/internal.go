package internal

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/siderolabs/go-retry/retry"

	"github.com/gammadia/flotilla/cluster"
)

const (
	BaseSecurityGroup = "flotilla"

	checkIPURL = "https://checkip.amazonaws.com"
)

func ClusterSecurityGroup(clusterName string) string {
	return BaseSecurityGroup + "-" + clusterName
}

type Timeouts struct {
	State        time.Duration `json:"state-timeout"`
	PollInterval time.Duration `json:"poll-interval"`
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		State:        10 * time.Minute,
		PollInterval: 5 * time.Second,
	}
}

// WaitFor polls check until it reports done. Errors wrapped with retry.ExpectedError are
// retried, any other error stops the wait.
func WaitFor(ctx context.Context, t Timeouts, what string, check func(ctx context.Context) (bool, error)) error {
	err := retry.Constant(t.State, retry.WithUnits(t.PollInterval)).RetryWithContext(ctx, func(ctx context.Context) error {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if !done {
			return retry.ExpectedErrorf("still waiting for %s", what)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed while waiting for %s: %w", what, err)
	}
	return nil
}

// RoleFromTags returns the node role recorded in its tags. Untagged nodes are workers.
func RoleFromTags(tags map[string]string) cluster.Role {
	if cluster.Role(tags[cluster.TagRole]) == cluster.RoleLeader {
		return cluster.RoleLeader
	}
	return cluster.RoleWorker
}

// Rule is an ingress rule of a security group.
type Rule struct {
	Protocol string
	FromPort int
	ToPort   int
	// CIDR is empty when the rule allows the group itself
	CIDR string
}

func (r Rule) Self() bool {
	return r.CIDR == ""
}

// BaseRules lets the operator reach every flotilla node over SSH.
func BaseRules(operatorCIDRs []string) []Rule {
	rules := make([]Rule, 0, len(operatorCIDRs))
	for _, cidr := range operatorCIDRs {
		rules = append(rules, Rule{Protocol: "tcp", FromPort: 22, ToPort: 22, CIDR: cidr})
	}
	return rules
}

// ClusterRules opens all traffic between the nodes of a cluster and the service web
// interfaces to the operator.
func ClusterRules(operatorCIDRs []string, webPorts []int) []Rule {
	rules := []Rule{
		{Protocol: "tcp", FromPort: 1, ToPort: 65535},
		{Protocol: "udp", FromPort: 1, ToPort: 65535},
		{Protocol: "icmp", FromPort: -1, ToPort: -1},
	}
	for _, cidr := range operatorCIDRs {
		for _, port := range webPorts {
			rules = append(rules, Rule{Protocol: "tcp", FromPort: port, ToPort: port, CIDR: cidr})
		}
	}
	return rules
}

// OperatorCIDRs returns the configured CIDRs, or the operator's public address as a /32.
func OperatorCIDRs(ctx context.Context, configured []string) ([]string, error) {
	if len(configured) > 0 {
		for _, cidr := range configured {
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				return nil, fmt.Errorf("invalid operator CIDR '%s': %w", cidr, err)
			}
		}
		return configured, nil
	}

	ip, err := publicIP(ctx, checkIPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to detect the public address of this machine: %w", err)
	}
	return []string{ip + "/32"}, nil
}

func publicIP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", err
	}

	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("%s returned an invalid address %q", url, strings.TrimSpace(string(body)))
	}
	return ip.String(), nil
}
