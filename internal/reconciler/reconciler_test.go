package reconciler_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/endpoint-monitor/internal/consul"
	"github.com/angeloszaimis/endpoint-monitor/internal/consul/consultest"
	"github.com/angeloszaimis/endpoint-monitor/internal/metrics"
	"github.com/angeloszaimis/endpoint-monitor/internal/reconciler"
	"github.com/angeloszaimis/endpoint-monitor/internal/sensu"
	"github.com/angeloszaimis/endpoint-monitor/internal/sensu/sensutest"
)

type fakeMonitoring struct {
	clients   []string
	listErr   error
	missing   map[string]bool
	failing   map[string]error
	attempted []string
}

func (f *fakeMonitoring) ManagedClients(ctx context.Context) ([]string, error) {
	return f.clients, f.listErr
}

func (f *fakeMonitoring) DeleteClient(ctx context.Context, name string) (bool, error) {
	f.attempted = append(f.attempted, name)
	if err := f.failing[name]; err != nil {
		return false, err
	}
	return !f.missing[name], nil
}

type fakeCatalog struct {
	nodes []string
	err   error
}

func (f *fakeCatalog) Nodes(ctx context.Context) ([]string, error) {
	return f.nodes, f.err
}

var _ = Describe("Stale", func() {
	It("should return clients missing from the catalog", func() {
		Expect(reconciler.Stale([]string{"a", "b", "c"}, []string{"b"})).To(Equal([]string{"a", "c"}))
	})

	It("should return nothing when every client is registered", func() {
		Expect(reconciler.Stale([]string{"a"}, []string{"a", "z"})).To(BeEmpty())
	})

	It("should collapse duplicate clients", func() {
		Expect(reconciler.Stale([]string{"a", "a"}, nil)).To(Equal([]string{"a"}))
	})

	It("should equal C minus N for random sets", func() {
		rng := rand.New(rand.NewSource(42))
		for round := 0; round < 200; round++ {
			var clients, nodes []string
			inNodes := map[string]bool{}
			for i := 0; i < 20; i++ {
				name := fmt.Sprintf("host-%d", rng.Intn(30))
				if rng.Intn(2) == 0 {
					clients = append(clients, name)
				} else {
					nodes = append(nodes, name)
					inNodes[name] = true
				}
			}

			stale := reconciler.Stale(clients, nodes)
			for _, s := range stale {
				Expect(inNodes[s]).To(BeFalse())
				Expect(clients).To(ContainElement(s))
			}
			for _, c := range clients {
				if !inNodes[c] {
					Expect(stale).To(ContainElement(c))
				}
			}
		}
	})
})

var _ = Describe("Reconciler", func() {
	var (
		log        *slog.Logger
		ctx        context.Context
		monitoring *fakeMonitoring
		catalog    *fakeCatalog
		r          *reconciler.Reconciler
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		ctx = context.Background()
		monitoring = &fakeMonitoring{clients: []string{"web-1", "web-2", "old-1", "old-2"}}
		catalog = &fakeCatalog{nodes: []string{"web-1", "web-2", "db-1"}}
		r = reconciler.New(log, monitoring, catalog, nil)
	})

	It("should delete exactly the stale clients", func() {
		result, err := r.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Stale).To(Equal([]string{"old-1", "old-2"}))
		Expect(result.Deleted).To(Equal([]string{"old-1", "old-2"}))
		Expect(monitoring.attempted).To(ConsistOf("old-1", "old-2"))
		Expect(result.Failures).NotTo(HaveOccurred())
	})

	It("should leave registered clients untouched", func() {
		_, err := r.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(monitoring.attempted).NotTo(ContainElement("web-1"))
		Expect(monitoring.attempted).NotTo(ContainElement("web-2"))
	})

	It("should treat an already absent client as success", func() {
		monitoring.missing = map[string]bool{"old-1": true}

		result, err := r.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Absent).To(Equal([]string{"old-1"}))
		Expect(result.Deleted).To(Equal([]string{"old-2"}))
		Expect(result.Failures).NotTo(HaveOccurred())
	})

	It("should keep going after a failed deletion", func() {
		boom := errors.New("sensu exploded")
		monitoring.failing = map[string]error{"old-1": boom}

		result, err := r.Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Deleted).To(Equal([]string{"old-2"}))
		Expect(result.Failures).To(MatchError(boom))
	})

	It("should abort when the clients cannot be listed", func() {
		monitoring.listErr = errors.New("connection refused")

		_, err := r.Reconcile(ctx)
		Expect(err).To(HaveOccurred())
		Expect(monitoring.attempted).To(BeEmpty())
	})

	It("should abort when the nodes cannot be listed", func() {
		catalog.err = errors.New("no cluster leader")

		_, err := r.Reconcile(ctx)
		Expect(err).To(MatchError(ContainSubstring("no cluster leader")))
		Expect(monitoring.attempted).To(BeEmpty())
	})

	It("should stop deleting once the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := r.Reconcile(cancelled)
		Expect(err).NotTo(HaveOccurred())
		Expect(monitoring.attempted).To(BeEmpty())
		Expect(result.Failures).To(MatchError(context.Canceled))
	})

	It("should report deletions to the collector", func() {
		collector := metrics.NewCollector(10, log, nil)
		collectorCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		collector.Start(collectorCtx)

		_, err := reconciler.New(log, monitoring, catalog, collector).Reconcile(ctx)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() []string {
			return collector.Snapshot().DeletedClients
		}).Should(Equal([]string{"old-1", "old-2"}))
	})

	Context("against Sensu and Consul APIs", func() {
		var (
			sensuServer  *sensutest.Server
			consulServer *consultest.Server
		)

		BeforeEach(func() {
			sensuServer = sensutest.NewServer(
				sensu.Result{Client: "web-1", Check: sensu.Check{Name: "check_http", CheckSource: "consul"}},
				sensu.Result{Client: "gone-1", Check: sensu.Check{Name: "check_http", CheckSource: "consul"}},
				sensu.Result{Client: "manual-1", Check: sensu.Check{Name: "keepalive"}},
			)
			consulServer = consultest.NewServer([]string{"web-1"}, nil)
		})

		AfterEach(func() {
			sensuServer.Close()
			consulServer.Close()
		})

		It("should delete only consul-managed clients missing from the catalog", func() {
			catalogClient, err := consul.New(consulServer.URL, "", "")
			Expect(err).NotTo(HaveOccurred())
			sensuClient := sensu.New(sensuServer.URL, sensu.Options{PostTimeout: time.Second}, log)

			rec := reconciler.New(log, sensuClient, catalogClient, nil)

			result, err := rec.Reconcile(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Deleted).To(Equal([]string{"gone-1"}))
			Expect(sensuServer.Clients()).To(ConsistOf("web-1", "manual-1"))

			again, err := rec.Reconcile(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Stale).To(BeEmpty())
			Expect(sensuServer.Deleted()).To(Equal([]string{"gone-1"}))
		})
	})
})
