package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDuesMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newDuesMetrics(registry, Config{
		ServiceName: "duekeeper",
		Environment: "test",
	})

	metrics.IncReminderSent(3)
	metrics.IncReminderSent(3)
	metrics.IncCollection(CollectionResultCollected)
	metrics.IncEviction("eviction")
	metrics.IncTransfer(TransferOutcomeRefunded)

	if got := testutil.ToFloat64(metrics.remindersSent.WithLabelValues("3")); got != 2 {
		t.Fatalf("expected 2 reminders at offset 3, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.collections.WithLabelValues(CollectionResultCollected)); got != 1 {
		t.Fatalf("expected 1 collection, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.evictions.WithLabelValues("eviction")); got != 1 {
		t.Fatalf("expected 1 eviction, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.transfers.WithLabelValues(TransferOutcomeRefunded)); got != 1 {
		t.Fatalf("expected 1 refunded transfer, got %v", got)
	}
}

func TestOffsetLabelFoldsUncommonOffsets(t *testing.T) {
	if got := offsetLabel(14); got != "other" {
		t.Fatalf("expected \"other\", got %q", got)
	}
	if got := offsetLabel(7); got != "7" {
		t.Fatalf("expected \"7\", got %q", got)
	}
}
