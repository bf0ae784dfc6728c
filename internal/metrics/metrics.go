// Package metrics exposes the prometheus counters of the verification workflow
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	TokensIssued         *prometheus.CounterVec
	VerificationOutcomes *prometheus.CounterVec
	LinkOutcomes         *prometheus.CounterVec
	VendorNotifications  *prometheus.CounterVec
}

// New registers every collector on reg. Tests pass a fresh
// prometheus.NewRegistry() so counters never leak between cases.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarmarket",
			Name:      "verification_tokens_issued_total",
			Help:      "Verification tokens issued, by kind.",
		}, []string{"kind"}),
		VerificationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarmarket",
			Name:      "verification_outcomes_total",
			Help:      "Verification attempts, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		LinkOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarmarket",
			Name:      "questionnaire_link_outcomes_total",
			Help:      "Questionnaire to account linking attempts, by outcome.",
		}, []string{"outcome"}),
		VendorNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarmarket",
			Name:      "vendor_notifications_total",
			Help:      "Vendor notification dispatches, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.TokensIssued, m.VerificationOutcomes, m.LinkOutcomes, m.VendorNotifications)
	return m
}
