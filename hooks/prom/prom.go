// Package promhooks counts querycache and respcache events as Prometheus metrics.
// Keys are not used as labels; only bounded values (event kind, reason) are.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/respcache"
)

const namespace = "querycache"

type Hooks struct {
	fetches     *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	invalidated prometheus.Counter
	rollbacks   prometheus.Counter
	collected   prometheus.Counter
	selfHeal    *prometheus.CounterVec
	rejected    prometheus.Counter
}

var (
	_ querycache.Hooks = (*Hooks)(nil)
	_ respcache.Hooks  = (*Hooks)(nil)
)

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Fetch events by outcome (started, shared, failed).",
		}, []string{"event"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_results_discarded_total",
			Help:      "Fetch results not written because the entry moved on.",
		}, []string{"reason"}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_invalidated_total",
			Help:      "Entries marked stale by Invalidate.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_rollbacks_total",
			Help:      "Optimistic mutations rolled back after failure.",
		}),
		collected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_collected_total",
			Help:      "Unused entries dropped by the sweeper.",
		}),
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "respcache",
			Name:      "self_heal_total",
			Help:      "Stored responses dropped on read, by reason.",
		}, []string{"reason"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "respcache",
			Name:      "set_rejected_total",
			Help:      "Response writes refused by the provider.",
		}),
	}
	for _, c := range []prometheus.Collector{h.fetches, h.discarded, h.invalidated, h.rollbacks, h.collected, h.selfHeal, h.rejected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) FetchStarted(string)                      { h.fetches.WithLabelValues("started").Inc() }
func (h *Hooks) FetchShared(string)                       { h.fetches.WithLabelValues("shared").Inc() }
func (h *Hooks) FetchFailed(string, error)                { h.fetches.WithLabelValues("failed").Inc() }
func (h *Hooks) FetchDiscarded(_, reason string)          { h.discarded.WithLabelValues(reason).Inc() }
func (h *Hooks) Invalidated(_ string, n int)              { h.invalidated.Add(float64(n)) }
func (h *Hooks) MutationRolledBack(string, string, error) { h.rollbacks.Inc() }
func (h *Hooks) EntryCollected(string)                    { h.collected.Inc() }

func (h *Hooks) SelfHeal(_, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) SetRejected(string)        { h.rejected.Inc() }
