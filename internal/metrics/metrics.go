// Package metrics holds the small, fixed set of Prometheus collectors this
// core exposes. Each Engine owns a private registry rather than registering
// against prometheus.DefaultRegisterer, so that multiple engines can
// coexist in one process (notably in tests) without "duplicate metrics
// collector registration attempted" panics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// BufferPool holds the counters a ParallelBufferPool updates on every
// fetch/evict/flush.
type BufferPool struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	Flushes   prometheus.Counter
}

// LockManager holds the counters the lock manager updates on every grant,
// wait, and wound.
type LockManager struct {
	Grants prometheus.Counter
	Waits  prometheus.Counter
	Wounds prometheus.Counter
}

// Registry bundles every collector this core registers, plus the
// *prometheus.Registry callers can mount behind an HTTP handler.
type Registry struct {
	reg         *prometheus.Registry
	BufferPool  BufferPool
	LockManager LockManager
}

// NewRegistry creates a fresh, private registry with every collector
// registered and ready to use.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		BufferPool: BufferPool{
			Hits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "latchdb_buffer_pool_hits_total",
				Help: "Pages served from the buffer pool without a disk read.",
			}),
			Misses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "latchdb_buffer_pool_misses_total",
				Help: "Pages that required a disk read to fetch.",
			}),
			Evictions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "latchdb_buffer_pool_evictions_total",
				Help: "Frames reclaimed from the replacer to serve a fetch/new.",
			}),
			Flushes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "latchdb_buffer_pool_flushes_total",
				Help: "Dirty pages written back to disk.",
			}),
		},
		LockManager: LockManager{
			Grants: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "latchdb_lock_manager_grants_total",
				Help: "Lock requests granted.",
			}),
			Waits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "latchdb_lock_manager_waits_total",
				Help: "Lock requests that had to block before granting.",
			}),
			Wounds: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "latchdb_lock_manager_wounds_total",
				Help: "Younger transactions aborted by wound-wait.",
			}),
		},
	}

	reg.MustRegister(
		r.BufferPool.Hits, r.BufferPool.Misses, r.BufferPool.Evictions, r.BufferPool.Flushes,
		r.LockManager.Grants, r.LockManager.Waits, r.LockManager.Wounds,
	)

	return r
}

// Prometheus returns the underlying registry, e.g. for
// promhttp.HandlerFor(reg.Prometheus(), promhttp.HandlerOpts{}).
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}
