package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"shopflow/internal/contract"
	"shopflow/internal/pkg/constants"
	"shopflow/internal/pkg/httpclient"
	"shopflow/internal/service/purchase/domain"
)

func newClient(srv *httptest.Server) *httpclient.Client {
	resolver := httpclient.StaticResolver{
		constants.StorageService:  srv.URL,
		constants.CustomerService: srv.URL,
		constants.ProductService:  srv.URL,
	}
	return httpclient.NewClient(noop.NewTracerProvider().Tracer("test"), resolver, time.Second)
}

func TestStorageAdapter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+constants.StorageCheckOrderPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(true)
	})
	mux.HandleFunc("POST "+constants.StorageFindOutPath+"{customerId}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("customerId") != "c1" {
			t.Errorf("Expected customer c1, got %s", r.PathValue("customerId"))
		}
		json.NewEncoder(w).Encode(map[string]int{"p1": 4})
	})
	mux.HandleFunc("POST "+constants.StorageReservePath, func(w http.ResponseWriter, r *http.Request) {
		var req contract.ReserveRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.OrderID == "o-full" {
			http.Error(w, "insufficient stock", http.StatusConflict)
			return
		}
		if req.OrderID == "o-reused" {
			http.Error(w, "order id already used with a different cart", http.StatusUnprocessableEntity)
			return
		}
		if req.OrderID == "o-broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(contract.ReserveResult{OrderID: req.OrderID, AlreadyApplied: req.OrderID == "o-retry"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewStorageHTTPAdapter(newClient(srv))
	ctx := context.Background()
	cart := contract.Cart{{ProductID: "p1", Quantity: 4}}

	if ok, err := a.IsOrderInStorage(ctx, cart); err != nil || !ok {
		t.Errorf("Expected true, got %v %v", ok, err)
	}
	if shortage, err := a.FindOutOfStorage(ctx, cart, "c1"); err != nil || shortage["p1"] != 4 {
		t.Errorf("Expected {p1:4}, got %v %v", shortage, err)
	}
	if result, err := a.Reserve(ctx, "o-ok", "c1", cart); err != nil || result.AlreadyApplied {
		t.Errorf("Expected a fresh reservation, got %+v %v", result, err)
	}
	if result, err := a.Reserve(ctx, "o-retry", "c1", cart); err != nil || !result.AlreadyApplied {
		t.Errorf("Expected already applied, got %+v %v", result, err)
	}
	if _, err := a.Reserve(ctx, "o-full", "c1", cart); !errors.Is(err, domain.ErrReservationRejected) {
		t.Errorf("Expected ErrReservationRejected, got %v", err)
	}
	if _, err := a.Reserve(ctx, "o-reused", "c1", cart); !errors.Is(err, domain.ErrOrderIDReused) {
		t.Errorf("Expected ErrOrderIDReused, got %v", err)
	}
	_, err := a.Reserve(ctx, "o-broken", "c1", cart)
	if err == nil || errors.Is(err, domain.ErrReservationRejected) {
		t.Errorf("Expected a plain error for 500, got %v", err)
	}
}

func TestCustomerAdapter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+constants.CustomerContactPath+"{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "c1" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(contract.Customer{Name: "Ann", Email: "ann@example.com"})
	})
	cleaned := ""
	mux.HandleFunc("PUT "+constants.CustomerCleanCartPath+"{id}", func(w http.ResponseWriter, r *http.Request) {
		cleaned = r.PathValue("id")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewCustomerHTTPAdapter(newClient(srv))
	ctx := context.Background()

	c, err := a.FindContact(ctx, "c1")
	if err != nil || c.Email != "ann@example.com" {
		t.Errorf("Expected Ann's contact, got %+v %v", c, err)
	}
	if _, err := a.FindContact(ctx, "c2"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}
	if err := a.CleanCart(ctx, "c1"); err != nil || cleaned != "c1" {
		t.Errorf("Expected cart of c1 cleaned, got %q %v", cleaned, err)
	}
}

func TestCatalogAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		json.NewDecoder(r.Body).Decode(&ids)
		out := make([]contract.Product, 0, len(ids))
		for _, id := range ids {
			out = append(out, contract.Product{ID: id, Name: "name-" + id})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	products, err := NewCatalogHTTPAdapter(newClient(srv)).FindProducts(context.Background(), []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if products["p2"].Name != "name-p2" || len(products) != 2 {
		t.Errorf("Unexpected products %v", products)
	}
}
