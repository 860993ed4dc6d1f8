// Package consultest provides an in-memory Consul catalog for tests.
package consultest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/angeloszaimis/endpoint-monitor/internal/consul"
)

// Server serves the read-only catalog endpoints. The consul self service is
// always present in /v1/catalog/services.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	nodes     []string
	instances map[string][]consul.Instance
}

func NewServer(nodes []string, instances map[string][]consul.Instance) *Server {
	s := &Server{nodes: nodes, instances: instances}
	if s.instances == nil {
		s.instances = map[string][]consul.Instance{}
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetNodes replaces the registered nodes.
func (s *Server) SetNodes(nodes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nodes
}

type catalogNode struct {
	Node string
}

type catalogService struct {
	Node           string
	ServiceName    string
	ServiceAddress string
	ServicePort    int
	ServiceMeta    map[string]string
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body any
	switch {
	case r.URL.Path == "/v1/catalog/nodes":
		nodes := make([]catalogNode, 0, len(s.nodes))
		for _, n := range s.nodes {
			nodes = append(nodes, catalogNode{Node: n})
		}
		body = nodes

	case r.URL.Path == "/v1/catalog/services":
		services := map[string][]string{consul.SelfService: {}}
		for name := range s.instances {
			services[name] = []string{}
		}
		body = services

	case strings.HasPrefix(r.URL.Path, "/v1/catalog/service/"):
		name := strings.TrimPrefix(r.URL.Path, "/v1/catalog/service/")
		entries := make([]catalogService, 0)
		for _, inst := range s.instances[name] {
			entries = append(entries, catalogService{
				Node:           inst.Node,
				ServiceName:    name,
				ServiceAddress: inst.ServiceAddress,
				ServicePort:    inst.ServicePort,
				ServiceMeta:    inst.ServiceMeta,
			})
		}
		body = entries

	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Consul-Index", "1")
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("X-Consul-KnownLeader", "true")
	json.NewEncoder(w).Encode(body)
}
