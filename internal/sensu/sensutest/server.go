// Package sensutest provides an in-memory Sensu API for tests.
package sensutest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/angeloszaimis/endpoint-monitor/internal/sensu"
)

// Server answers GET/POST /results and DELETE /clients/{name} the way the
// Sensu API does: posting a result for an unknown client registers it.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	results []sensu.Result
	posted  []sensu.Payload
	deleted []string

	// PostStatus, when non-zero, makes POST /results fail with that status
	// and an empty body.
	PostStatus int
	// DeleteStatus, when non-zero, makes DELETE /clients/{name} fail with
	// that status.
	DeleteStatus int
}

func NewServer(results ...sensu.Result) *Server {
	s := &Server{results: results}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// NewTLSServer is NewServer behind a self-signed certificate.
func NewTLSServer(results ...sensu.Result) *Server {
	s := &Server{results: results}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) Posted() []sensu.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sensu.Payload(nil), s.posted...)
}

func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Clients returns every client that currently has a result.
func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	seen := map[string]bool{}
	for _, r := range s.results {
		if !seen[r.Client] {
			seen[r.Client] = true
			names = append(names, r.Client)
		}
	}
	return names
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.URL.Path == "/results" && r.Method == http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.results)

	case r.URL.Path == "/results" && r.Method == http.MethodPost:
		if s.PostStatus != 0 {
			w.WriteHeader(s.PostStatus)
			return
		}
		var p sensu.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.posted = append(s.posted, p)
		s.record(p)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"issued":1}`))

	case strings.HasPrefix(r.URL.Path, "/clients/") && r.Method == http.MethodDelete:
		if s.DeleteStatus != 0 {
			http.Error(w, "delete failed", s.DeleteStatus)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/clients/")
		kept := s.results[:0]
		found := false
		for _, res := range s.results {
			if res.Client == name {
				found = true
				continue
			}
			kept = append(kept, res)
		}
		s.results = kept
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.deleted = append(s.deleted, name)
		w.WriteHeader(http.StatusAccepted)

	default:
		http.NotFound(w, r)
	}
}

// record upserts the result for the payload's client and check name.
func (s *Server) record(p sensu.Payload) {
	check := sensu.Check{}
	check.Name, _ = p["name"].(string)
	check.CheckSource, _ = p["check_source"].(string)
	check.Output, _ = p["output"].(string)
	if status, ok := p["status"].(float64); ok {
		check.Status = int(status)
	}

	for i, res := range s.results {
		if res.Client == p.Source() && res.Check.Name == check.Name {
			s.results[i].Check = check
			return
		}
	}
	s.results = append(s.results, sensu.Result{Client: p.Source(), Check: check})
}
