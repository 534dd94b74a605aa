package application

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"shopflow/internal/contract"
)

type fakePublisher struct {
	alerts []contract.LowStockAlert
}

func (f *fakePublisher) PublishLowStock(ctx context.Context, alert contract.LowStockAlert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

// fakeGuard 只允许每个 token 执行一次
type fakeGuard struct {
	seen map[string]bool
}

func (g *fakeGuard) RunOnce(ctx context.Context, token string, fn func(ctx context.Context) error) (bool, error) {
	if g.seen[token] {
		return false, nil
	}
	g.seen[token] = true
	return true, fn(ctx)
}

func newScanner(t *testing.T, f *storageFixture, guard ScanGuard) (*LowStockScanner, *fakePublisher) {
	t.Helper()
	publisher := &fakePublisher{}
	scanner, err := NewLowStockScanner(f.repo, publisher, guard, 10, "0 7 * * *", noop.NewTracerProvider().Tracer("test"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return scanner, publisher
}

func TestScanPublishesItemsAtOrBelowThreshold(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 3, "b": 10, "c": 11})
	scanner, publisher := newScanner(t, f, nil)

	alert, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(alert.Items) != 2 {
		t.Fatalf("Expected 2 items, got %+v", alert.Items)
	}
	if alert.Items[0] != (contract.LowStockItem{ProductID: "a", Quantity: 3}) || alert.Items[1] != (contract.LowStockItem{ProductID: "b", Quantity: 10}) {
		t.Errorf("Unexpected items: %+v", alert.Items)
	}
	if len(publisher.alerts) != 1 {
		t.Errorf("Expected 1 published alert, got %d", len(publisher.alerts))
	}
}

func TestScanSkipsPublishWhenNothingIsLow(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 50})
	scanner, publisher := newScanner(t, f, nil)

	if _, err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(publisher.alerts) != 0 {
		t.Errorf("Expected no alert, got %d", len(publisher.alerts))
	}
}

func TestScheduledScanRunsOncePerSlot(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 1})
	guard := &fakeGuard{seen: map[string]bool{}}
	scanner, publisher := newScanner(t, f, guard)
	scanner.now = func() time.Time { return time.Date(2024, 3, 1, 7, 0, 12, 0, time.UTC) }

	// 两个副本在同一分钟内触发
	scanner.runScheduled(context.Background())
	scanner.runScheduled(context.Background())

	if len(publisher.alerts) != 1 {
		t.Errorf("Expected 1 alert for the slot, got %d", len(publisher.alerts))
	}
	if !guard.seen["low-stock-2024-03-01T07:00"] {
		t.Errorf("Expected slot token to be recorded, got %v", guard.seen)
	}
}

func TestNewLowStockScannerRejectsBadSchedule(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := NewLowStockScanner(f.repo, &fakePublisher{}, nil, 10, "every morning", noop.NewTracerProvider().Tracer("test")); err == nil {
		t.Errorf("Expected error for invalid schedule")
	}
}
