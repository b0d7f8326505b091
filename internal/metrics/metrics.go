// Package metrics collects the process-level stat counters spec.md §9
// calls out as global mutable state: WAL push/get counts, cumulative
// backup bytes, and retry counts. It follows the same shape as the
// teacher's own prometheus.Collector implementations (see
// internal/worker/sshserver's Collector): named fields of
// prometheus.Counter/CounterVec built with prometheus.NewCounter(Vec),
// registered against a private prometheus.Registry rather than the
// package-global DefaultRegisterer, since spec.md §9 explicitly rules
// out process-wide mutable singletons.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "pgbackrest"

// Collector holds every counter this process exposes. Callers obtain
// one via New and thread it through the command layer explicitly
// rather than reaching for a package-level default.
type Collector struct {
	registry *prometheus.Registry

	walPushTotal     prometheus.Counter
	walGetTotal      prometheus.Counter
	backupBytesTotal *prometheus.CounterVec
	retryTotal       *prometheus.CounterVec
}

// New builds a Collector with its own private registry, registers the
// Go and process collectors on it (the same pair the teacher's
// NewPrometheusRegistry adds), and registers every counter this
// package defines.
func New() (*Collector, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(prometheus.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	c := &Collector{
		registry: registry,
		walPushTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_push_total",
			Help:      "Total number of WAL segments successfully pushed to the repository.",
		}),
		walGetTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_get_total",
			Help:      "Total number of WAL segments successfully retrieved from the repository.",
		}),
		backupBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_total",
			Help:      "Total bytes copied into the repository, by backup type.",
		}, []string{"backup_type"}),
		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_total",
			Help:      "Total number of retried operations, by operation.",
		}, []string{"operation"}),
	}

	for _, coll := range []prometheus.Collector{c.walPushTotal, c.walGetTotal, c.backupBytesTotal, c.retryTotal} {
		if err := registry.Register(coll); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Registry returns the private prometheus.Registry backing this
// Collector, for wiring into an HTTP handler (promhttp.HandlerFor).
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// WALPush increments the WAL-push counter by one.
func (c *Collector) WALPush() { c.walPushTotal.Inc() }

// WALGet increments the WAL-get counter by one.
func (c *Collector) WALGet() { c.walGetTotal.Inc() }

// BackupBytes adds n bytes to the cumulative total for backupType
// (full, diff, incr).
func (c *Collector) BackupBytes(backupType string, n float64) {
	c.backupBytesTotal.WithLabelValues(backupType).Add(n)
}

// Retry increments the retry counter for operation by one.
func (c *Collector) Retry(operation string) {
	c.retryTotal.WithLabelValues(operation).Inc()
}
