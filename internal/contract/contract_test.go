package contract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCartValidate(t *testing.T) {
	cases := []struct {
		name string
		cart Cart
		ok   bool
	}{
		{"valid", Cart{{ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 3}}, true},
		{"empty", Cart{}, false},
		{"zero quantity", Cart{{ProductID: "p1", Quantity: 0}}, false},
		{"negative quantity", Cart{{ProductID: "p1", Quantity: -2}}, false},
		{"duplicate product", Cart{{ProductID: "p1", Quantity: 1}, {ProductID: "p1", Quantity: 2}}, false},
		{"missing id", Cart{{Quantity: 1}}, false},
	}
	for _, tc := range cases {
		err := tc.cart.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: expected valid cart, got %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidCart) {
			t.Errorf("%s: expected ErrInvalidCart, got %v", tc.name, err)
		}
	}
}

func TestInventoryStatusOmitsShortageWhenAvailable(t *testing.T) {
	data, _ := json.Marshal(InventoryStatus{IsOrderInStorage: true})
	if strings.Contains(string(data), "outOfStorageProducts") {
		t.Errorf("Expected shortage map to be omitted, got %s", data)
	}

	data, _ = json.Marshal(InventoryStatus{OutOfStorageProducts: map[string]int{"p1": 2}})
	if !strings.Contains(string(data), `"outOfStorageProducts":{"p1":2}`) {
		t.Errorf("Expected shortage map in %s", data)
	}
}

func TestMailDataTemplateKeys(t *testing.T) {
	data, _ := json.Marshal(MailData{ID: "o-1", Products: []string{"Laptop"}})
	for _, key := range []string{`"Cost"`, `"ID"`, `"Products"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Expected key %s in %s", key, data)
		}
	}
	if strings.Contains(string(data), `"Name"`) {
		t.Errorf("Expected Name to be omitted when unknown, got %s", data)
	}
}
