package openstack

import (
	"sort"
	"strings"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"

	"github.com/gammadia/flotilla/cluster"
	"github.com/gammadia/flotilla/provider/internal"
)

// stateError is reported for servers OpenStack put in ERROR; it never matches a wanted state.
const stateError cluster.State = "error"

func toState(status string) cluster.State {
	switch strings.ToUpper(status) {
	case "ACTIVE":
		return cluster.StateRunning
	case "SHUTOFF", "SUSPENDED", "PAUSED":
		return cluster.StateStopped
	case "BUILD", "REBUILD", "REBOOT", "HARD_REBOOT", "MIGRATING", "RESIZE", "VERIFY_RESIZE":
		return cluster.StatePending
	case "DELETED", "SOFT_DELETED":
		return cluster.StateTerminated
	case "ERROR":
		return stateError
	}
	return cluster.State(strings.ToLower(status))
}

func toNode(server servers.Server) cluster.Node {
	public, private := addresses(server.Addresses)

	groups := make([]string, 0, len(server.SecurityGroups))
	for _, g := range server.SecurityGroups {
		if name, ok := g["name"].(string); ok {
			groups = append(groups, name)
		}
	}

	return cluster.Node{
		ID:             server.ID,
		Cluster:        server.Metadata[cluster.TagCluster],
		Role:           internal.RoleFromTags(server.Metadata),
		State:          toState(server.Status),
		PublicIP:       public,
		PrivateIP:      private,
		SecurityGroups: groups,
		LaunchedAt:     server.Created,
	}
}

// addresses picks the first IPv4 floating and fixed addresses, visiting networks by name.
func addresses(all map[string]interface{}) (public, private string) {
	networks := make([]string, 0, len(all))
	for name := range all {
		networks = append(networks, name)
	}
	sort.Strings(networks)

	for _, network := range networks {
		entries, ok := all[network].([]interface{})
		if !ok {
			continue
		}
		for _, entry := range entries {
			address, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			addr, _ := address["addr"].(string)
			if version, _ := address["version"].(float64); version != 4 || addr == "" {
				continue
			}

			switch address["OS-EXT-IPS:type"] {
			case "floating":
				if public == "" {
					public = addr
				}
			default:
				if private == "" {
					private = addr
				}
			}
		}
	}
	return public, private
}
