package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the contact pipeline metrics shared by the mail, notify and
// audit components.
type Metrics struct {
	ContactOutcomes *prometheus.CounterVec
	GateRejections  *prometheus.CounterVec
	MailAttempts    *prometheus.CounterVec
	MailDuration    prometheus.Histogram
	NotifyDropped   *prometheus.CounterVec
	NotifyFailures  prometheus.Counter
	AuditFailures   prometheus.Counter
	Uploads         *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ContactOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_contact_outcomes_total",
			Help: "Contact submissions by final delivery outcome",
		}, []string{"outcome"}),
		GateRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_contact_gate_rejections_total",
			Help: "Contact submissions rejected by the gate, by reason",
		}, []string{"reason"}),
		MailAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_mail_attempts_total",
			Help: "SMTP delivery attempts by transport label and result",
		}, []string{"attempt", "result"}),
		MailDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_mail_attempt_duration_seconds",
			Help:    "Duration of individual SMTP delivery attempts",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		NotifyDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_notify_dropped_total",
			Help: "Notification events dropped before delivery, by reason",
		}, []string{"reason"}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_notify_failures_total",
			Help: "Notification deliveries that returned an error",
		}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_audit_append_failures_total",
			Help: "Audit lines that could not be written",
		}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_admin_uploads_total",
			Help: "Admin PDF uploads by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordOutcome(outcome string) {
	m.ContactOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRejection(reason string) {
	m.GateRejections.WithLabelValues(reason).Inc()
}

// ObserveMailAttempt records one SMTP attempt and how long it took.
func (m *Metrics) ObserveMailAttempt(label string, ok bool, seconds float64) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.MailAttempts.WithLabelValues(label, result).Inc()
	m.MailDuration.Observe(seconds)
}

func (m *Metrics) IncrementNotifyDropped(reason string) {
	m.NotifyDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementNotifyFailures() {
	m.NotifyFailures.Inc()
}

func (m *Metrics) RecordUpload(ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.Uploads.WithLabelValues(result).Inc()
}
