package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
	"shopflow/internal/contract"
	"shopflow/internal/service/purchase/application"
	"shopflow/internal/service/purchase/domain"
)

type stubStorage struct {
	inStorage  bool
	reserveErr error
	shortage   map[string]int
}

func (s stubStorage) IsOrderInStorage(ctx context.Context, cart contract.Cart) (bool, error) {
	return s.inStorage, nil
}

func (s stubStorage) FindOutOfStorage(ctx context.Context, cart contract.Cart, customerID string) (map[string]int, error) {
	return s.shortage, nil
}

func (s stubStorage) Reserve(ctx context.Context, orderID, customerID string, cart contract.Cart) (contract.ReserveResult, error) {
	return contract.ReserveResult{OrderID: orderID}, s.reserveErr
}

type stubCustomers struct{}

func (stubCustomers) FindContact(ctx context.Context, customerID string) (*contract.Customer, error) {
	return &contract.Customer{Name: "Ann", Email: "ann@example.com"}, nil
}

func (stubCustomers) CleanCart(ctx context.Context, customerID string) error { return nil }

type stubCatalog struct{}

func (stubCatalog) FindProducts(ctx context.Context, ids []string) (map[string]contract.Product, error) {
	return nil, nil
}

type stubOutbox struct {
	appended  int
	appendErr error
}

func (s *stubOutbox) Append(ctx context.Context, events ...*domain.OutboxEvent) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended += len(events)
	return nil
}

func (s *stubOutbox) FetchPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	return nil, nil
}

func (s *stubOutbox) MarkSent(ctx context.Context, id string, sentAt time.Time) error { return nil }

func (s *stubOutbox) MarkFailed(ctx context.Context, id string, cause string) error { return nil }

func (s *stubOutbox) CountPending(ctx context.Context) (int64, error) { return 0, nil }

func newMux(storage stubStorage, outbox *stubOutbox) *http.ServeMux {
	svc := application.NewPurchaseService(storage, stubCustomers{}, stubCatalog{}, outbox, nil, decimal.Zero, noop.NewTracerProvider().Tracer("test"))
	mux := http.NewServeMux()
	NewPurchaseHandler(svc).RegisterRoutes(mux)
	return mux
}

const purchaseBody = `{"customerId":"c1","cart":[{"productId":"p1","name":"Lamp","quantity":1}],"totalCost":"25.00"}`

func post(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestPurchaseEndpoint(t *testing.T) {
	outbox := &stubOutbox{}
	rec := post(newMux(stubStorage{inStorage: true}, outbox), "/api/v1/purchase/operation", purchaseBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var status contract.InventoryStatus
	json.Unmarshal(rec.Body.Bytes(), &status)
	if !status.IsOrderInStorage || status.OrderID == "" {
		t.Errorf("Expected confirmed status, got %+v", status)
	}
	if outbox.appended != 2 {
		t.Errorf("Expected order-confirmed and mail events, got %d", outbox.appended)
	}
}

func TestPurchaseEndpointShortage(t *testing.T) {
	rec := post(newMux(stubStorage{shortage: map[string]int{"p1": 1}}, &stubOutbox{}), "/api/v1/purchase/operation", purchaseBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"outOfStorageProducts":{"p1":1}`) {
		t.Errorf("Expected shortage in body, got %s", rec.Body.String())
	}
}

func TestPurchaseEndpointErrors(t *testing.T) {
	conflict := stubStorage{inStorage: true, reserveErr: domain.ErrReservationRejected, shortage: map[string]int{}}
	if rec := post(newMux(conflict, &stubOutbox{}), "/api/v1/purchase/operation", purchaseBody); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rec.Code)
	}
	if rec := post(newMux(stubStorage{}, &stubOutbox{}), "/api/v1/purchase/operation", `{"customerId":"c1","cart":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if rec := post(newMux(stubStorage{}, &stubOutbox{}), "/api/v1/purchase/operation", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	reused := stubStorage{inStorage: true, reserveErr: domain.ErrOrderIDReused}
	if rec := post(newMux(reused, &stubOutbox{}), "/api/v1/purchase/operation", purchaseBody); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a reused order id, got %d", rec.Code)
	}
}

func TestPurchaseEndpointReturnsOrderIDWhenUnconfirmed(t *testing.T) {
	outbox := &stubOutbox{appendErr: errors.New("database is locked")}
	rec := post(newMux(stubStorage{inStorage: true}, outbox), "/api/v1/purchase/operation", purchaseBody)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		OrderID string `json:"orderId"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.OrderID == "" || !strings.Contains(body.Error, "database is locked") {
		t.Errorf("Expected order id and cause in body, got %+v", body)
	}
}

func TestSendMailEndpoint(t *testing.T) {
	outbox := &stubOutbox{}
	body := `{"orderId":"o-1","customerId":"c1","cart":[{"productId":"p1","name":"Lamp","quantity":1}],"totalCost":"25.00"}`
	if rec := post(newMux(stubStorage{}, outbox), "/api/v1/purchase/mail/send", body); rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	if outbox.appended != 1 {
		t.Errorf("Expected 1 mail event, got %d", outbox.appended)
	}
}
