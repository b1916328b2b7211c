package metrics

import (
	"math"

	"github.com/jsphweid/metalign/joint"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "metalign"

// Observer records coordinator statistics as Prometheus metrics. One Observer
// may be shared by many coordinators.
type Observer struct {
	steps     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	children  *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	collapsed *prometheus.CounterVec
	evicted   *prometheus.CounterVec
	memoHits  *prometheus.CounterVec
	kept      *prometheus.GaugeVec
	started   *prometheus.GaugeVec
	best      *prometheus.GaugeVec
}

var _ joint.Observer = (*Observer)(nil)

func NewObserver(reg prometheus.Registerer) *Observer {
	kind := []string{"kind"}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, kind)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		}, kind)
	}

	o := &Observer{
		steps:     counter("beam_advances_total", "Step and close rounds."),
		children:  counter("beam_children_total", "Successor hypotheses generated."),
		skipped:   counter("beam_skipped_parents_total", "Parents skipped because they scored below the beam."),
		collapsed: counter("beam_collapsed_total", "Hypotheses dropped as duplicates."),
		evicted:   counter("beam_evicted_total", "Hypotheses dropped by beam caps."),
		memoHits:  counter("beam_memo_hits_total", "Sub-model successor lookups served from the memo."),
		kept:      gauge("beam_size", "Hypotheses kept after the last round."),
		started:   gauge("beam_started", "Started hypotheses kept after the last round."),
		best:      gauge("beam_best_score", "Score of the best hypothesis after the last round."),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "beam_advance_seconds",
			Help:      "Time spent in one step or close round.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, kind),
	}
	reg.MustRegister(o.steps, o.duration, o.children, o.skipped, o.collapsed,
		o.evicted, o.memoHits, o.kept, o.started, o.best)
	return o
}

func (o *Observer) ObserveStep(s joint.StepStats) {
	o.steps.WithLabelValues(s.Kind).Inc()
	o.duration.WithLabelValues(s.Kind).Observe(s.Duration.Seconds())
	o.children.WithLabelValues(s.Kind).Add(float64(s.Children))
	o.skipped.WithLabelValues(s.Kind).Add(float64(s.Skipped))
	o.collapsed.WithLabelValues(s.Kind).Add(float64(s.Collapsed))
	o.evicted.WithLabelValues(s.Kind).Add(float64(s.Evicted))
	o.memoHits.WithLabelValues(s.Kind).Add(float64(s.MemoHits))
	o.kept.WithLabelValues(s.Kind).Set(float64(s.Kept))
	o.started.WithLabelValues(s.Kind).Set(float64(s.Started))
	// an exhausted round has no best score
	if !math.IsInf(s.BestScore, -1) {
		o.best.WithLabelValues(s.Kind).Set(s.BestScore)
	}
}
