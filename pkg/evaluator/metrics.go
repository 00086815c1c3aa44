package evaluator

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	rounds   *prometheus.CounterVec
	derived  *prometheus.CounterVec
	tuples   *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, prog string) (*metrics, error) {
	labels := prometheus.Labels{"program": prog}
	m := &metrics{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "fixpoint",
			Name:        "rounds_total",
			Help:        "Evaluation rounds per stratum and phase.",
			ConstLabels: labels,
		}, []string{"stratum", "phase"}),
		derived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "fixpoint",
			Name:        "derived_tuples_total",
			Help:        "Tuples added to or improved in derived relations.",
			ConstLabels: labels,
		}, []string{"relation"}),
		tuples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "fixpoint",
			Name:        "relation_tuples",
			Help:        "Number of tuples per relation.",
			ConstLabels: labels,
		}, []string{"relation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "fixpoint",
			Name:        "round_duration_seconds",
			Help:        "Duration of evaluation rounds.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"stratum"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.rounds, err = register(reg, m.rounds)
	if err != nil {
		return nil, err
	}
	m.derived, err = register(reg, m.derived)
	if err != nil {
		return nil, err
	}
	m.tuples, err = register(reg, m.tuples)
	if err != nil {
		return nil, err
	}
	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register registers a collector, reusing an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) round(stratum int, phase State, seconds float64) {
	s := strconv.Itoa(stratum)
	m.rounds.WithLabelValues(s, phase.String()).Inc()
	m.duration.WithLabelValues(s).Observe(seconds)
}
