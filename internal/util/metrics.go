package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of confirmed bookings created",
	})

	BookingsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_replayed_total",
		Help: "Booking requests answered with an existing booking for the same payment intent",
	})

	BookingsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_failed_total",
		Help: "Total number of rejected or failed booking attempts",
	}, []string{"reason"})

	BookingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Total number of cancelled bookings",
	})

	TicketsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_sold_total",
		Help: "Total number of tickets sold",
	})

	TicketsRestockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_restocked_total",
		Help: "Total number of tickets returned to inventory by cancellations",
	})

	PaymentVerificationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_verification_latency_seconds",
		Help:    "Latency of payment provider calls",
		Buckets: prometheus.DefBuckets,
	})

	PaymentIntentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_created_total",
		Help: "Total number of payment intents created",
	})

	PaymentsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Payment recording outcomes",
	}, []string{"outcome"})

	BookingTxLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booking_tx_latency_seconds",
		Help:    "Latency of booking and cancellation transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Retries of transient failures at the HTTP boundary",
	}, []string{"operation"})

	StatsCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_cache_total",
		Help: "Stats cache lookups by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
