package openstack

import (
	"errors"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/secgroups"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/startstop"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
)

// computeAPI is the part of the compute service the provider uses.
type computeAPI interface {
	ListServers() ([]servers.Server, error)
	CreateServer(opts servers.CreateOptsBuilder) (*servers.Server, error)
	GetServer(id string) (*servers.Server, error)
	UpdateMetadata(id string, metadata map[string]string) error
	DeleteServer(id string) error
	StartServer(id string) error
	StopServer(id string) error

	ListSecurityGroups() ([]secgroups.SecurityGroup, error)
	CreateSecurityGroup(name, description string) (*secgroups.SecurityGroup, error)
	CreateRule(opts secgroups.CreateRuleOpts) error
	DeleteSecurityGroup(id string) error
	RemoveServerFromGroup(serverID, groupName string) error
}

type gopherAPI struct {
	client *gophercloud.ServiceClient
}

var _ computeAPI = (*gopherAPI)(nil)

func (a *gopherAPI) ListServers() ([]servers.Server, error) {
	pages, err := servers.List(a.client, servers.ListOpts{}).AllPages()
	if err != nil {
		return nil, err
	}
	return servers.ExtractServers(pages)
}

func (a *gopherAPI) CreateServer(opts servers.CreateOptsBuilder) (*servers.Server, error) {
	return servers.Create(a.client, opts).Extract()
}

func (a *gopherAPI) GetServer(id string) (*servers.Server, error) {
	return servers.Get(a.client, id).Extract()
}

func (a *gopherAPI) UpdateMetadata(id string, metadata map[string]string) error {
	_, err := servers.UpdateMetadata(a.client, id, servers.MetadataOpts(metadata)).Extract()
	return err
}

func (a *gopherAPI) DeleteServer(id string) error {
	return servers.Delete(a.client, id).ExtractErr()
}

func (a *gopherAPI) StartServer(id string) error {
	return startstop.Start(a.client, id).ExtractErr()
}

func (a *gopherAPI) StopServer(id string) error {
	return startstop.Stop(a.client, id).ExtractErr()
}

func (a *gopherAPI) ListSecurityGroups() ([]secgroups.SecurityGroup, error) {
	pages, err := secgroups.List(a.client).AllPages()
	if err != nil {
		return nil, err
	}
	return secgroups.ExtractSecurityGroups(pages)
}

func (a *gopherAPI) CreateSecurityGroup(name, description string) (*secgroups.SecurityGroup, error) {
	return secgroups.Create(a.client, secgroups.CreateOpts{Name: name, Description: description}).Extract()
}

func (a *gopherAPI) CreateRule(opts secgroups.CreateRuleOpts) error {
	_, err := secgroups.CreateRule(a.client, opts).Extract()
	return err
}

func (a *gopherAPI) DeleteSecurityGroup(id string) error {
	return secgroups.Delete(a.client, id).ExtractErr()
}

func (a *gopherAPI) RemoveServerFromGroup(serverID, groupName string) error {
	return secgroups.RemoveServer(a.client, serverID, groupName).ExtractErr()
}

func isNotFound(err error) bool {
	var notFound gophercloud.ErrDefault404
	var notFoundPtr *gophercloud.ErrDefault404
	return errors.As(err, &notFound) || errors.As(err, &notFoundPtr)
}
