package transfer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
)

type Metrics struct {
	TransfersTotal   *prometheus.CounterVec
	TransferDuration prometheus.Histogram
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_total",
				Help: "Total transfer attempts by outcome.",
			},
			[]string{"status"},
		),
		TransferDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "transfer_duration_seconds",
				Help:    "Transfer execution latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(m.TransfersTotal, m.TransferDuration)
	return m
}

func (m *Metrics) Observe(err error, elapsed time.Duration) {
	m.TransfersTotal.WithLabelValues(statusLabel(err)).Inc()
	m.TransferDuration.Observe(elapsed.Seconds())
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrRecipientNotFound):
		return "recipient_not_found"
	case errors.Is(err, storage.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "error"
	}
}
