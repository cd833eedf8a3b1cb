// Package metrics exposes Prometheus counters for wallet operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects issuance and removal counters.
type Metrics struct {
	IssuanceAttempts      prometheus.Counter
	IssuanceFailures      *prometheus.CounterVec
	GreenCardsStored      *prometheus.CounterVec
	EventGroupsExpired    prometheus.Counter
	RemovedEventsRecorded *prometheus.CounterVec
}

// New registers all counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IssuanceAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "greenwallet_issuance_attempts_total",
			Help: "Total number of issuance attempts started",
		}),
		IssuanceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenwallet_issuance_failures_total",
			Help: "Total number of issuance attempts failed, by phase",
		}, []string{"phase"}),
		GreenCardsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenwallet_green_cards_stored_total",
			Help: "Total number of green cards stored, by type",
		}, []string{"type"}),
		EventGroupsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "greenwallet_event_groups_expired_total",
			Help: "Total number of event groups removed by expiry sweeps",
		}),
		RemovedEventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenwallet_removed_events_recorded_total",
			Help: "Total number of removed-event audit records written, by reason",
		}, []string{"reason"}),
	}
}

// IncIssuanceAttempt counts one started issuance attempt.
func (m *Metrics) IncIssuanceAttempt() { m.IssuanceAttempts.Inc() }

// IncIssuanceFailure counts one failed attempt for the given phase.
func (m *Metrics) IncIssuanceFailure(phase string) {
	m.IssuanceFailures.WithLabelValues(phase).Inc()
}

// IncGreenCardStored counts one stored green card of the given type.
func (m *Metrics) IncGreenCardStored(cardType string) {
	m.GreenCardsStored.WithLabelValues(cardType).Inc()
}

// AddEventGroupsExpired counts swept event groups.
func (m *Metrics) AddEventGroupsExpired(n int64) {
	m.EventGroupsExpired.Add(float64(n))
}

// IncRemovedEventRecorded counts one audit record for the given reason.
func (m *Metrics) IncRemovedEventRecorded(reason string) {
	m.RemovedEventsRecorded.WithLabelValues(reason).Inc()
}
