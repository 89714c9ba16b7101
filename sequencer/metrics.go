package sequencer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forestrie/go-cmtree/cmt"
	"github.com/forestrie/go-cmtree/treestore"
)

const metricsNamespace = "cmt"

// Metrics counts sequenced operations. Register it with the service's
// registry; a Sequencer created without metrics uses an unregistered set.
type Metrics struct {
	Accepted    prometheus.Counter
	Rejected    *prometheus.CounterVec
	FastForward prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_accepted_total",
			Help:      "Operations applied to a tree and committed.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_rejected_total",
			Help:      "Operations refused, by reason.",
		}, []string{"kind"}),
		FastForward: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fast_forward_depth",
			Help:      "Change logs replayed to bring an accepted proof up to date.",
			Buckets:   append([]float64{0}, prometheus.ExponentialBuckets(1, 2, 12)...),
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Accepted, m.Rejected, m.FastForward} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) accepted(fastForward int) {
	m.Accepted.Inc()
	m.FastForward.Observe(float64(fastForward))
}

func (m *Metrics) rejected(err error) {
	m.Rejected.WithLabelValues(RejectKind(err)).Inc()
}

// RejectKind labels err for the rejected counter.
func RejectKind(err error) string {
	var rejected *cmt.RejectError
	switch {
	case errors.As(err, &rejected):
		return rejected.Kind()
	case errors.Is(err, cmt.ErrStaleProof):
		return "stale_proof"
	case errors.Is(err, cmt.ErrInvalidInput):
		return "invalid_input"
	case treestore.IsConflict(err):
		return "commit_conflict"
	default:
		return "other"
	}
}
