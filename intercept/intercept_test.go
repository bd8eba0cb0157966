// Package intercept provides tests for request classification and mock
// response bodies.
package intercept

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestClassify tests URL-to-mock routing.
func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want Kind
	}{
		{"https://shop.example.com/api/payment/process", KindPayment},
		{"https://shop.example.com/api/checkout/complete", KindPayment},
		{"https://shop.example.com/payments/process", KindPayment},
		{"https://shop.example.com/API/PAYMENT", KindPayment}, // case insensitive
		{"https://api.stripe.com/v1/payment_methods", KindPayment},
		{"https://js.stripe.com/v3/stripe.js", KindStripe},
		{"https://www.paypal.com/sdk/js", KindPayPal},
		{"https://shop.example.com/api/transactions/42", KindTransaction},
		{"https://shop.example.com/api/shipping-options", KindShipping},
		{"https://shop.example.com/checkout/shipping-methods", KindShipping},
		{"https://payments.braintree-api.com/graphql", KindPayment},
		{"https://www.google-analytics.com/g/collect", KindAnalytics},
		{"https://shop.example.com/gtag/js?id=G-XYZ", KindAnalytics},
		{"https://static.hotjar.com/c/hotjar.js", KindAnalytics},
		{"https://shop.example.com/track/page-view", KindAnalytics},
		{"https://shop.example.com/products?q=juice", KindNone},
		{"https://shop.example.com/", KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := Classify(tt.url)
			if got != tt.want {
				t.Errorf("Classify(%q) = %d, want %d", tt.url, got, tt.want)
			}
		})
	}
}

// TestClassifyAnalyticsWins verifies analytics markers take precedence
// over payment markers.
func TestClassifyAnalyticsWins(t *testing.T) {
	got := Classify("https://payments.example.com/track/conversion")
	if got != KindAnalytics {
		t.Errorf("Classify = %d, want KindAnalytics", got)
	}
}

// TestPaymentResponse tests the generic payment mock body.
func TestPaymentResponse(t *testing.T) {
	t.Run("POST returns full transaction", func(t *testing.T) {
		body := PaymentResponse("POST", `{"amount":"42.50","currency":"EUR"}`)

		var resp map[string]any
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}

		if resp["status"] != "success" {
			t.Errorf("status = %v, want 'success'", resp["status"])
		}
		if resp["amount"] != "42.50" {
			t.Errorf("amount = %v, want '42.50'", resp["amount"])
		}
		if resp["currency"] != "EUR" {
			t.Errorf("currency = %v, want 'EUR'", resp["currency"])
		}

		txn, _ := resp["transaction_id"].(string)
		if !strings.HasPrefix(txn, "mock_txn_") {
			t.Errorf("transaction_id = %q, want 'mock_txn_' prefix", txn)
		}
	})

	t.Run("POST defaults amount", func(t *testing.T) {
		body := PaymentResponse("POST", "not json")

		var resp map[string]any
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp["amount"] != "100.00" {
			t.Errorf("amount = %v, want '100.00'", resp["amount"])
		}
		if resp["currency"] != "USD" {
			t.Errorf("currency = %v, want 'USD'", resp["currency"])
		}
	})

	t.Run("GET returns bare success", func(t *testing.T) {
		body := PaymentResponse("GET", "")

		var resp map[string]any
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp["status"] != "success" {
			t.Errorf("status = %v, want 'success'", resp["status"])
		}
		if _, ok := resp["transaction_id"]; ok {
			t.Error("non-POST response should not carry a transaction_id")
		}
	})
}

// TestStripeResponse tests the Stripe-shaped mock body.
func TestStripeResponse(t *testing.T) {
	var resp map[string]any
	if err := json.Unmarshal(StripeResponse(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if resp["object"] != "payment_method" {
		t.Errorf("object = %v, want 'payment_method'", resp["object"])
	}

	id, _ := resp["id"].(string)
	if !strings.HasPrefix(id, "pm_") {
		t.Errorf("id = %q, want 'pm_' prefix", id)
	}

	card, ok := resp["card"].(map[string]any)
	if !ok {
		t.Fatal("card object missing")
	}
	if card["last4"] != "4242" {
		t.Errorf("last4 = %v, want '4242'", card["last4"])
	}
}

// TestPayPalResponse tests the PayPal-shaped mock body.
func TestPayPalResponse(t *testing.T) {
	var resp map[string]any
	if err := json.Unmarshal(PayPalResponse(`{"amount":"9.99"}`), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if resp["status"] != "COMPLETED" {
		t.Errorf("status = %v, want 'COMPLETED'", resp["status"])
	}

	id, _ := resp["id"].(string)
	if !strings.HasPrefix(id, "PAYID-") {
		t.Errorf("id = %q, want 'PAYID-' prefix", id)
	}

	units, ok := resp["purchase_units"].([]any)
	if !ok || len(units) != 1 {
		t.Fatal("purchase_units missing")
	}
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	if amount["value"] != "9.99" {
		t.Errorf("value = %v, want '9.99'", amount["value"])
	}
}

// TestTransactionResponse tests the fallback processor mock body.
func TestTransactionResponse(t *testing.T) {
	var resp map[string]any
	if err := json.Unmarshal(TransactionResponse(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	txn, _ := resp["transaction_id"].(string)
	if !strings.HasPrefix(txn, "txn_") {
		t.Errorf("transaction_id = %q, want 'txn_' prefix", txn)
	}
}

// TestShippingResponse tests the shipping options mock body.
func TestShippingResponse(t *testing.T) {
	var resp struct {
		Methods []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Price         string `json:"price"`
			EstimatedDays int    `json:"estimated_days"`
		} `json:"shipping_methods"`
	}
	if err := json.Unmarshal(ShippingResponse(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(resp.Methods) != 2 {
		t.Fatalf("got %d shipping methods, want 2", len(resp.Methods))
	}
	if resp.Methods[0].ID != "standard" || resp.Methods[1].ID != "express" {
		t.Errorf("method ids = %q, %q", resp.Methods[0].ID, resp.Methods[1].ID)
	}
	if resp.Methods[1].EstimatedDays != 1 {
		t.Errorf("express estimated_days = %d, want 1", resp.Methods[1].EstimatedDays)
	}
}

// TestRespond tests dispatch from classification to body builder.
func TestRespond(t *testing.T) {
	var stripe map[string]any
	json.Unmarshal(Respond(KindStripe, "POST", ""), &stripe)
	if stripe["object"] != "payment_method" {
		t.Error("KindStripe should produce a Stripe body")
	}

	var paypal map[string]any
	json.Unmarshal(Respond(KindPayPal, "POST", ""), &paypal)
	if paypal["intent"] != "CAPTURE" {
		t.Error("KindPayPal should produce a PayPal body")
	}

	var payment map[string]any
	json.Unmarshal(Respond(KindPayment, "POST", ""), &payment)
	if payment["status"] != "success" {
		t.Error("KindPayment should produce a payment body")
	}

	var shipping map[string]any
	json.Unmarshal(Respond(KindShipping, "GET", ""), &shipping)
	if _, ok := shipping["shipping_methods"]; !ok {
		t.Error("KindShipping should produce a shipping body")
	}
}

// TestMockIDUnique verifies mock IDs do not repeat.
func TestMockIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := mockID()
		if len(id) != 10 {
			t.Fatalf("len(mockID) = %d, want 10", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate mock ID %q", id)
		}
		seen[id] = true
	}
}
