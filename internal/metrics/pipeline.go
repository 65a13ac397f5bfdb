// Package metrics exposes pipeline health to Prometheus: outcomes routed,
// leads lost to CRM failures and transcriptions that could not be
// correlated with a call.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contact_automation"

// Pipeline holds the event counters updated by the outcome router.
type Pipeline struct {
	outcomes           *prometheus.CounterVec
	leadsLost          *prometheus.CounterVec
	correlation        *prometheus.CounterVec
	classifierDegraded *prometheus.CounterVec
	retries            *prometheus.CounterVec
	orphans            prometheus.Counter
	duplicates         prometheus.Counter
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Outcomes persisted to the CRM, by kind and source.",
		}, []string{"kind", "source"}),
		leadsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_lost_total",
			Help:      "Outcomes the CRM rejected; they sit in the ledger retry queue.",
		}, []string{"kind"}),
		correlation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_correlations_total",
			Help:      "How transcription emails were matched to calls (token, caller, latest, miss).",
		}, []string{"strategy"}),
		classifierDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_degraded_total",
			Help:      "Classifications replaced by the default, by reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_retries_total",
			Help:      "Ledger retry attempts, by result.",
		}, []string{"ok"}),
		orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_calls_total",
			Help:      "Calls routed without transcription because no email arrived in time.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_outcomes_suppressed_total",
			Help:      "Routing attempts dropped because the ledger key was already claimed.",
		}),
	}
}

// Register adds the counters to reg.
func (p *Pipeline) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		p.outcomes, p.leadsLost, p.correlation, p.classifierDegraded, p.retries, p.orphans, p.duplicates,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) OutcomePersisted(kind, source string) {
	p.outcomes.WithLabelValues(kind, source).Inc()
}

func (p *Pipeline) LeadLost(kind string) { p.leadsLost.WithLabelValues(kind).Inc() }

func (p *Pipeline) Correlated(strategy string) { p.correlation.WithLabelValues(strategy).Inc() }

func (p *Pipeline) ClassifierDegraded(reason string) {
	p.classifierDegraded.WithLabelValues(reason).Inc()
}

func (p *Pipeline) RetryAttempt(ok bool) {
	p.retries.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (p *Pipeline) OrphanRouted() { p.orphans.Inc() }

func (p *Pipeline) DuplicateSuppressed() { p.duplicates.Inc() }
