package metrics

import (
	"context"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe reports whether a backend dependency is reachable.
type Probe func(ctx context.Context) error

// Config holds dependencies for the collector
type Config struct {
	Probes   map[string]Probe
	Interval time.Duration
}

// Collector manages the proxy's metric registry and backend probing.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	mu           sync.RWMutex
	lastSnapshot time.Time

	up          *prometheus.GaugeVec
	snapshotAge *prometheus.GaugeVec

	requests        *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	badRequests     prometheus.Counter
	spooled         prometheus.Counter
	replayed        prometheus.Counter
	published       *prometheus.CounterVec
}

func NewCollector(cfg Config) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	reg := prometheus.NewRegistry()

	c := &Collector{
		config:   cfg,
		registry: reg,
	}

	c.up = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frl_proxy_backend_up",
		Help: "Status of backend components (1=up, 0=down)",
	}, []string{"component"})
	reg.MustRegister(c.up)

	c.snapshotAge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frl_proxy_probe_age_seconds",
		Help: "Age of the last successful probe",
	}, []string{"component"})
	reg.MustRegister(c.snapshotAge)

	c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frl_proxy_requests_total",
		Help: "COPS requests handled, by kind and result",
	}, []string{"kind", "result"})
	reg.MustRegister(c.requests)

	c.upstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frl_proxy_upstream_latency_seconds",
		Help:    "Latency of forwarded requests to the licensing server",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})
	reg.MustRegister(c.upstreamLatency)

	c.badRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frl_proxy_bad_requests_total",
		Help: "Requests rejected before forwarding",
	})
	reg.MustRegister(c.badRequests)

	c.spooled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frl_proxy_transactions_spooled_total",
		Help: "Transactions written to the local spool after a database failure",
	})
	reg.MustRegister(c.spooled)

	c.replayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frl_proxy_transactions_replayed_total",
		Help: "Spooled transactions replayed into the database",
	})
	reg.MustRegister(c.replayed)

	c.published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frl_proxy_events_published_total",
		Help: "Transaction events published to NATS",
	}, []string{"result"})
	reg.MustRegister(c.published)

	reg.MustRegister(collectors.NewGoCollector())

	return c
}

// ObserveRequest records one handled request. kind is empty for requests
// rejected before a kind could be determined.
func (c *Collector) ObserveRequest(kind, result string, upstream time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	c.requests.WithLabelValues(kind, result).Inc()
	if upstream > 0 {
		c.upstreamLatency.WithLabelValues(kind).Observe(upstream.Seconds())
	}
}

func (c *Collector) BadRequest() { c.badRequests.Inc() }

func (c *Collector) Spooled() { c.spooled.Inc() }

func (c *Collector) Replayed(n int) {
	if n > 0 {
		c.replayed.Add(float64(n))
	}
}

func (c *Collector) Published(err error) {
	if err != nil {
		c.published.WithLabelValues("fail").Inc()
		return
	}
	c.published.WithLabelValues("success").Inc()
}

func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and embedding.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// LastSnapshot returns when probes last completed.
func (c *Collector) LastSnapshot() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSnapshot
}

func (c *Collector) collect(ctx context.Context) {
	names := make([]string, 0, len(c.config.Probes))
	for name := range c.config.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go c.probe(ctx, name, c.config.Probes[name], &wg)
	}
	wg.Wait()

	c.mu.Lock()
	c.lastSnapshot = time.Now()
	c.mu.Unlock()
}

func (c *Collector) probe(ctx context.Context, name string, p Probe, wg *sync.WaitGroup) {
	defer wg.Done()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p(ctx); err != nil {
		c.up.WithLabelValues(name).Set(0)
		log.Printf("[metrics] probe %s failed: %v", name, err)
		return
	}
	c.up.WithLabelValues(name).Set(1)
	c.snapshotAge.WithLabelValues(name).Set(0)
}
