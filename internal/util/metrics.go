package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OtpSendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_send_total",
		Help: "Total number of OTP challenges issued",
	}, []string{"delivery"})

	OtpSendRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otp_send_rate_limited_total",
		Help: "Total number of OTP sends rejected by the resend cooldown",
	})

	OtpVerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verify_total",
		Help: "Total number of OTP verification attempts",
	}, []string{"result"})

	OtpSessionsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otp_sessions_purged_total",
		Help: "Total number of stale OTP sessions garbage-collected",
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order submissions",
	}, []string{"reason"})

	ReceiptsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipts_submitted_total",
		Help: "Total number of payment receipts recorded",
	})

	ReceiptsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receipts_rejected_total",
		Help: "Total number of rejected receipt submissions",
	}, []string{"reason"})

	PaymentsDecidedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_decided_total",
		Help: "Total number of administrator payment verdicts",
	}, []string{"status"})

	CatalogCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_requests_total",
		Help: "Catalog cache lookups by outcome",
	}, []string{"outcome"})

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
