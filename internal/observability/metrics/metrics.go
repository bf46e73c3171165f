// Package metrics exposes prometheus instruments for the enforcement
// scheduler and the dues domain. Metrics are process-wide singletons so any
// package can record without threading a registry through call sites.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every metric.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) constLabels() prometheus.Labels {
	serviceName := strings.TrimSpace(c.ServiceName)
	if serviceName == "" {
		serviceName = "duekeeper"
	}
	environment := strings.TrimSpace(c.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

const (
	CollectionResultCollected    = "collected"
	CollectionResultInsufficient = "insufficient_funds"

	TransferOutcomeOK       = "ok"
	TransferOutcomeDebitKO  = "debit_failed"
	TransferOutcomeRefunded = "refunded"
	TransferOutcomeStranded = "stranded"
)

// DuesMetrics captures dues lifecycle signals: reminders, collections,
// notices, evictions, transfers.
type DuesMetrics struct {
	remindersSent  *prometheus.CounterVec
	overdueNotices prometheus.Counter
	collections    *prometheus.CounterVec
	evictions      *prometheus.CounterVec
	transfers      *prometheus.CounterVec
	payments       *prometheus.CounterVec
}

var (
	duesMetricsOnce sync.Once
	duesMetrics     *DuesMetrics
)

// Dues returns the singleton dues metrics registry.
func Dues() *DuesMetrics {
	return DuesWithConfig(Config{})
}

// DuesWithConfig returns the singleton dues metrics registry using config labels.
func DuesWithConfig(cfg Config) *DuesMetrics {
	duesMetricsOnce.Do(func() {
		duesMetrics = newDuesMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return duesMetrics
}

// ResetDuesMetricsForTest resets the dues metrics singleton for tests.
func ResetDuesMetricsForTest() {
	duesMetricsOnce = sync.Once{}
	duesMetrics = nil
}

func newDuesMetrics(registerer prometheus.Registerer, cfg Config) *DuesMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	remindersSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "duekeeper_reminders_sent_total",
		Help:        "Dues reminders sent by day offset before the due date.",
		ConstLabels: constLabels,
	}, []string{"offset_days"})
	overdueNotices := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "duekeeper_overdue_notices_total",
		Help:        "Overdue notices sent after a failed collection.",
		ConstLabels: constLabels,
	})
	collections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "duekeeper_collections_total",
		Help:        "Auto-collection attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "duekeeper_evictions_total",
		Help:        "Subscriber evictions by method.",
		ConstLabels: constLabels,
	}, []string{"method"})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "duekeeper_wallet_transfers_total",
		Help:        "Wallet-to-dedicated transfers by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "duekeeper_payments_recorded_total",
		Help:        "Ledger payment events recorded by method.",
		ConstLabels: constLabels,
	}, []string{"method"})

	registerer.MustRegister(
		remindersSent,
		overdueNotices,
		collections,
		evictions,
		transfers,
		payments,
	)

	return &DuesMetrics{
		remindersSent:  remindersSent,
		overdueNotices: overdueNotices,
		collections:    collections,
		evictions:      evictions,
		transfers:      transfers,
		payments:       payments,
	}
}

// IncReminderSent increments the reminder counter for a day offset.
func (m *DuesMetrics) IncReminderSent(offsetDays int) {
	if m == nil || m.remindersSent == nil {
		return
	}
	m.remindersSent.WithLabelValues(offsetLabel(offsetDays)).Inc()
}

// IncOverdueNotice increments the overdue notice counter.
func (m *DuesMetrics) IncOverdueNotice() {
	if m == nil || m.overdueNotices == nil {
		return
	}
	m.overdueNotices.Inc()
}

// IncCollection increments the collection counter with its result.
func (m *DuesMetrics) IncCollection(result string) {
	if m == nil || m.collections == nil {
		return
	}
	m.collections.WithLabelValues(result).Inc()
}

// IncEviction increments the eviction counter for a method.
func (m *DuesMetrics) IncEviction(method string) {
	if m == nil || m.evictions == nil {
		return
	}
	m.evictions.WithLabelValues(method).Inc()
}

// IncTransfer increments the transfer counter for an outcome.
func (m *DuesMetrics) IncTransfer(outcome string) {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
}

// IncPaymentRecorded increments the payment counter for a ledger method.
func (m *DuesMetrics) IncPaymentRecorded(method string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(method).Inc()
}

func offsetLabel(offsetDays int) string {
	switch offsetDays {
	case 1:
		return "1"
	case 3:
		return "3"
	case 7:
		return "7"
	default:
		return "other"
	}
}
