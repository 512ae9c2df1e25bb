// Package promhooks counts cache hook events with Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/kvcache"
)

type Hooks struct {
	decodeFailed   prometheus.Counter
	rememberMiss   prometheus.Counter
	expiredOnWrite prometheus.Counter
	storeErrors    *prometheus.CounterVec
}

var _ kvcache.Hooks = (*Hooks)(nil)

// New registers the counters on reg under namespace (e.g. "app") with a
// constant driver label. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace, driver string) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"driver": driver}
	h := &Hooks{
		decodeFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kvcache", Name: "decode_failures_total",
			Help: "Stored values that could not be decoded.", ConstLabels: labels,
		}),
		rememberMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kvcache", Name: "remember_misses_total",
			Help: "Remember calls that invoked the producer.", ConstLabels: labels,
		}),
		expiredOnWrite: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kvcache", Name: "expired_writes_total",
			Help: "Writes whose expiry was already in the past.", ConstLabels: labels,
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kvcache", Name: "store_errors_total",
			Help: "Failed store operations by operation.", ConstLabels: labels,
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{h.decodeFailed, h.rememberMiss, h.expiredOnWrite, h.storeErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) DecodeFailed(string, error) { h.decodeFailed.Inc() }
func (h *Hooks) RememberMiss(string)       { h.rememberMiss.Inc() }
func (h *Hooks) ExpiredOnWrite(string)     { h.expiredOnWrite.Inc() }

func (h *Hooks) StoreError(op, _ string, _ error) {
	h.storeErrors.WithLabelValues(op).Inc()
}
