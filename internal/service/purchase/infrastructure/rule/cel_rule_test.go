package rule

import (
	"testing"

	"github.com/shopspring/decimal"
	"shopflow/internal/contract"
)

func TestDefaultLoyaltyBoundary(t *testing.T) {
	r, err := NewCELLoyaltyRule(DefaultLoyaltyExpression)
	if err != nil {
		t.Fatalf("Expected rule to compile, got %v", err)
	}

	tests := []struct {
		cost string
		want bool
	}{
		{"499.99", false},
		{"500.00", false},
		{"500.0", false},
		{"500.01", true},
		{"1200", true},
	}
	for _, tt := range tests {
		order := contract.Order{CustomerID: "c1", TotalCost: decimal.RequireFromString(tt.cost)}
		got, err := r.Eligible(order)
		if err != nil {
			t.Fatalf("cost %s: unexpected error %v", tt.cost, err)
		}
		if got != tt.want {
			t.Errorf("cost %s: expected %v, got %v", tt.cost, tt.want, got)
		}
	}
}

func TestCustomRuleUsesOrderFields(t *testing.T) {
	r, err := NewCELLoyaltyRule(`order.lines >= 3 && order.customerId != ""`)
	if err != nil {
		t.Fatalf("Expected rule to compile, got %v", err)
	}
	order := contract.Order{
		CustomerID: "c1",
		Cart:       contract.Cart{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 1}, {ProductID: "c", Quantity: 1}},
	}
	if ok, _ := r.Eligible(order); !ok {
		t.Errorf("Expected order with 3 lines to be eligible")
	}
}

func TestInvalidRules(t *testing.T) {
	if _, err := NewCELLoyaltyRule("order.totalCost >"); err == nil {
		t.Errorf("Expected syntax error")
	}

	r, err := NewCELLoyaltyRule("order.totalCost")
	if err != nil {
		t.Fatalf("Expected rule to compile, got %v", err)
	}
	if _, err := r.Eligible(contract.Order{TotalCost: decimal.NewFromInt(1)}); err == nil {
		t.Errorf("Expected error for non-boolean result")
	}
}
