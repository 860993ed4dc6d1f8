package consul

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	capi "github.com/hashicorp/consul/api"
)

// SelfService is the entry Consul registers for itself in every catalog.
const SelfService = "consul"

// Instance is one node's registration of one service.
type Instance struct {
	Node           string
	ServiceName    string
	ServiceAddress string
	ServicePort    int
	ServiceMeta    map[string]string
}

type Client struct {
	c *capi.Client
}

// New builds a catalog client for a base URL such as http://consul:8500.
func New(address, datacenter, token string) (*Client, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse consul address %q: %w", address, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("consul address %q has no host", address)
	}

	cfg := capi.DefaultConfig()
	cfg.Address = u.Host
	cfg.Scheme = u.Scheme
	cfg.PathPrefix = strings.TrimSuffix(u.Path, "/")
	if datacenter != "" {
		cfg.Datacenter = datacenter
	}
	if token != "" {
		cfg.Token = token
	}

	cli, err := capi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{c: cli}, nil
}

// Nodes returns the names of every node registered in the catalog.
func (c *Client) Nodes(ctx context.Context) ([]string, error) {
	nodes, _, err := c.c.Catalog().Nodes(query(ctx))
	if err != nil {
		return nil, fmt.Errorf("list catalog nodes: %w", err)
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		names = append(names, n.Node)
	}
	return names, nil
}

// Services returns the registered service names without Consul's own entry.
func (c *Client) Services(ctx context.Context) ([]string, error) {
	services, _, err := c.c.Catalog().Services(query(ctx))
	if err != nil {
		return nil, fmt.Errorf("list catalog services: %w", err)
	}
	return FilterServices(services), nil
}

// Instances returns every registration of the named service.
func (c *Client) Instances(ctx context.Context, service string) ([]Instance, error) {
	entries, _, err := c.c.Catalog().Service(service, "", query(ctx))
	if err != nil {
		return nil, fmt.Errorf("list instances of %s: %w", service, err)
	}

	instances := make([]Instance, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		instances = append(instances, Instance{
			Node:           e.Node,
			ServiceName:    e.ServiceName,
			ServiceAddress: e.ServiceAddress,
			ServicePort:    e.ServicePort,
			ServiceMeta:    e.ServiceMeta,
		})
	}
	return instances, nil
}

// FilterServices turns the catalog's name -> tags mapping into a sorted list
// of service names, dropping SelfService.
func FilterServices(services map[string][]string) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		if name == SelfService {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func query(ctx context.Context) *capi.QueryOptions {
	return (&capi.QueryOptions{}).WithContext(ctx)
}
