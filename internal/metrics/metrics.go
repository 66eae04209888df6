package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conftickets_registrations_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	paymentWebhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conftickets_payment_webhooks_total",
			Help: "Payment notifications by gateway status and outcome",
		},
		[]string{"status", "outcome"},
	)

	ticketEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conftickets_emails_total",
			Help: "Outgoing emails by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	scans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conftickets_scans_total",
			Help: "Ticket scans by mode and status",
		},
		[]string{"mode", "status"},
	)

	emailEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conftickets_email_events_total",
			Help: "Delivery webhook events by status",
		},
		[]string{"status"},
	)
)

func TrackRegistration(outcome string) {
	registrations.WithLabelValues(outcome).Inc()
}

func TrackPaymentWebhook(status, outcome string) {
	paymentWebhooks.WithLabelValues(status, outcome).Inc()
}

func TrackEmail(kind, outcome string) {
	ticketEmails.WithLabelValues(kind, outcome).Inc()
}

func TrackScan(mode, status string) {
	scans.WithLabelValues(mode, status).Inc()
}

func TrackEmailEvent(status string) {
	emailEvents.WithLabelValues(status).Inc()
}
