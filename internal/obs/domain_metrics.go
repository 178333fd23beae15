package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentAttemptsTotal counts payment attempts by provider and outcome.
	PaymentAttemptsTotal *prometheus.CounterVec
	// PaymentDuration records provider call latency in milliseconds.
	PaymentDuration *prometheus.HistogramVec
	// SuspiciousPaymentsTotal counts payments flagged by the fraud heuristics.
	SuspiciousPaymentsTotal *prometheus.CounterVec
	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal *prometheus.CounterVec
	// OrderStoreOpsTotal counts order store operations by backend.
	OrderStoreOpsTotal *prometheus.CounterVec
	// EventsPublishedTotal counts domain events handed to publishers.
	EventsPublishedTotal *prometheus.CounterVec
	// NotificationsTotal counts confirmation notifications by outcome.
	NotificationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers checkout-specific collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_attempts_total",
			Help:      "Count of payment processing outcomes.",
		}, []string{"provider", "result"})
		PaymentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_duration_ms",
			Help:      "Latency of payment provider calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"provider"})
		SuspiciousPaymentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_suspicious_total",
			Help:      "Payments flagged as suspicious, by reason.",
		}, []string{"reason"})
		RateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"})
		OrderStoreOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_store_operations_total",
			Help:      "Order store operations by backend, operation and result.",
		}, []string{"backend", "op", "result"})
		EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to publishers.",
		}, []string{"topic", "result"})
		NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Order confirmation notifications by outcome.",
		}, []string{"kind", "result"})

		for _, c := range []**prometheus.CounterVec{
			&PaymentAttemptsTotal, &SuspiciousPaymentsTotal, &RateLimitRejectedTotal,
			&OrderStoreOpsTotal, &EventsPublishedTotal, &NotificationsTotal,
		} {
			target := c
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
		mustRegisterCollector(reg, PaymentDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PaymentDuration = v
			}
		})
	})
}

// CountPaymentAttempt is a no-op until MustRegisterDomainMetrics ran.
func CountPaymentAttempt(provider, result string) {
	if PaymentAttemptsTotal != nil {
		PaymentAttemptsTotal.WithLabelValues(provider, result).Inc()
	}
}

// ObservePaymentDuration records ms for provider.
func ObservePaymentDuration(provider string, ms float64) {
	if PaymentDuration != nil {
		PaymentDuration.WithLabelValues(provider).Observe(ms)
	}
}

// CountSuspiciousPayment increments the fraud flag counter.
func CountSuspiciousPayment(reason string) {
	if SuspiciousPaymentsTotal != nil {
		SuspiciousPaymentsTotal.WithLabelValues(reason).Inc()
	}
}

// CountRateLimited increments the limiter rejection counter.
func CountRateLimited(route string) {
	if RateLimitRejectedTotal != nil {
		RateLimitRejectedTotal.WithLabelValues(route).Inc()
	}
}

// CountOrderStoreOp records an order store operation.
func CountOrderStoreOp(backend, op string, err error) {
	if OrderStoreOpsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	OrderStoreOpsTotal.WithLabelValues(backend, op, result).Inc()
}

// CountEventPublished records a publish attempt for topic.
func CountEventPublished(topic string, err error) {
	if EventsPublishedTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublishedTotal.WithLabelValues(topic, result).Inc()
}

// CountNotification records a notification outcome.
func CountNotification(kind string, err error) {
	if NotificationsTotal == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	NotificationsTotal.WithLabelValues(kind, result).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
