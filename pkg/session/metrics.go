package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one session subsystem.
// A nil *Metrics records nothing.
type Metrics struct {
	Refreshes       *prometheus.CounterVec
	RefreshWaiters  prometheus.Counter
	Replays         prometheus.Counter
	RequestOutcomes *prometheus.CounterVec
	Logins          *prometheus.CounterVec
	Logouts         *prometheus.CounterVec
	Authenticated   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
// A nil registry creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Refreshes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labsession",
				Name:      "refreshes_total",
				Help:      "Credential refresh network calls by result",
			},
			[]string{"result"}, // result=success/failure
		),
		RefreshWaiters: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "labsession",
				Name:      "refresh_waiters_total",
				Help:      "Requests that waited on a refresh started by another request",
			},
		),
		Replays: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "labsession",
				Name:      "replays_total",
				Help:      "Requests replayed after a credential refresh",
			},
		),
		RequestOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labsession",
				Name:      "request_outcomes_total",
				Help:      "Authorized requests by classified outcome",
			},
			[]string{"outcome"},
		),
		Logins: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labsession",
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
		Logouts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labsession",
				Name:      "logouts_total",
				Help:      "Session terminations by reason",
			},
			[]string{"reason"}, // reason=explicit/idle/refresh_failed
		),
		Authenticated: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "labsession",
				Name:      "authenticated",
				Help:      "1 while a session is held",
			},
		),
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.Refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refreshWaiter() {
	if m != nil {
		m.RefreshWaiters.Inc()
	}
}

func (m *Metrics) replay() {
	if m != nil {
		m.Replays.Inc()
	}
}

func (m *Metrics) outcome(o Outcome) {
	if m != nil {
		m.RequestOutcomes.WithLabelValues(o.String()).Inc()
	}
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.Logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) loggedIn() {
	if m != nil {
		m.Authenticated.Set(1)
	}
}

func (m *Metrics) loggedOut(reason LogoutReason) {
	if m != nil {
		m.Logouts.WithLabelValues(string(reason)).Inc()
		m.Authenticated.Set(0)
	}
}
