// Package intercept mocks payment provider APIs at the network layer so
// checkout flows complete without real transactions. It also blocks
// analytics beacons, which keeps sessions fast and deterministic.
package intercept

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// Kind classifies an intercepted request URL.
type Kind int

const (
	// KindNone means the request passes through untouched.
	KindNone Kind = iota
	// KindAnalytics requests are aborted.
	KindAnalytics
	// KindPayment covers generic payment and checkout endpoints.
	KindPayment
	// KindStripe covers Stripe API calls.
	KindStripe
	// KindPayPal covers PayPal API calls.
	KindPayPal
	// KindTransaction covers other payment processors (transaction
	// lookups, Braintree).
	KindTransaction
	// KindShipping covers shipping option lookups.
	KindShipping
)

var analyticsMarkers = []string{
	"google-analytics.com",
	"analytics.js",
	"gtm.js",
	"/gtag/",
	"/collect",
	"pixel",
	"track",
	"hotjar",
	"clarity",
}

// Classify maps a request URL to the mock that should answer it.
// Analytics wins over payment markers so tracking endpoints on payment
// hosts are still blocked.
func Classify(rawURL string) Kind {
	u := strings.ToLower(rawURL)

	for _, m := range analyticsMarkers {
		if strings.Contains(u, m) {
			return KindAnalytics
		}
	}

	switch {
	case strings.Contains(u, "shipping-options") || strings.Contains(u, "shipping-methods"):
		return KindShipping
	case strings.Contains(u, "payment") || strings.Contains(u, "checkout"):
		return KindPayment
	case strings.Contains(u, "stripe"):
		return KindStripe
	case strings.Contains(u, "paypal"):
		return KindPayPal
	case strings.Contains(u, "/api/transactions") || strings.Contains(u, "braintree"):
		return KindTransaction
	}
	return KindNone
}

// mockID returns a short lowercase alphanumeric token for mock
// transaction identifiers.
func mockID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// requestAmount pulls amount and currency out of a JSON request body,
// defaulting to 100.00 USD when absent or unparseable.
func requestAmount(body string) (amount, currency string) {
	amount, currency = "100.00", "USD"

	var payload struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return amount, currency
	}
	if payload.Amount != "" {
		amount = payload.Amount
	}
	if payload.Currency != "" {
		currency = payload.Currency
	}
	return amount, currency
}

// PaymentResponse builds the mock body for generic payment and
// checkout endpoints. POST requests get a full transaction payload,
// other methods a bare success marker.
func PaymentResponse(method, body string) []byte {
	if method != http.MethodPost {
		return mustJSON(map[string]any{"status": "success"})
	}

	amount, currency := requestAmount(body)
	return mustJSON(map[string]any{
		"status":         "success",
		"transaction_id": "mock_txn_" + mockID(),
		"payment_method": "credit_card",
		"amount":         amount,
		"currency":       currency,
		"message":        "Payment processed successfully",
	})
}

// StripeResponse builds a Stripe payment_method-shaped mock body.
func StripeResponse() []byte {
	return mustJSON(map[string]any{
		"id":       "pm_" + mockID(),
		"object":   "payment_method",
		"created":  1652121287,
		"customer": "cus_" + mockID(),
		"livemode": false,
		"type":     "card",
		"card": map[string]any{
			"brand":     "visa",
			"country":   "US",
			"exp_month": 12,
			"exp_year":  2024,
			"last4":     "4242",
		},
		"billing_details": map[string]any{
			"address": map[string]any{
				"city":        "Test City",
				"country":     "US",
				"postal_code": "12345",
				"state":       "CA",
			},
			"email": "customer@example.com",
			"name":  "Test Customer",
		},
	})
}

// PayPalResponse builds a PayPal capture-shaped mock body.
func PayPalResponse(body string) []byte {
	amount, currency := requestAmount(body)
	return mustJSON(map[string]any{
		"id":     "PAYID-" + strings.ToUpper(mockID()),
		"intent": "CAPTURE",
		"status": "COMPLETED",
		"purchase_units": []map[string]any{
			{
				"reference_id": "default",
				"amount": map[string]any{
					"currency_code": currency,
					"value":         amount,
				},
			},
		},
		"payer": map[string]any{
			"email_address": "customer@example.com",
			"payer_id":      "PAYERID" + mockID(),
		},
	})
}

// TransactionResponse builds the fallback body for other payment
// processors.
func TransactionResponse() []byte {
	return mustJSON(map[string]any{
		"success":        true,
		"transaction_id": "txn_" + mockID(),
	})
}

// ShippingResponse builds the mock body for shipping option lookups.
func ShippingResponse() []byte {
	return mustJSON(map[string]any{
		"shipping_methods": []map[string]any{
			{
				"id":             "standard",
				"name":           "Standard Shipping",
				"price":          "5.00",
				"currency":       "USD",
				"estimated_days": 5,
			},
			{
				"id":             "express",
				"name":           "Express Shipping",
				"price":          "15.00",
				"currency":       "USD",
				"estimated_days": 1,
			},
		},
	})
}

// Respond picks the mock body for a classified request.
func Respond(kind Kind, method, body string) []byte {
	switch kind {
	case KindStripe:
		return StripeResponse()
	case KindPayPal:
		return PayPalResponse(body)
	case KindTransaction:
		return TransactionResponse()
	case KindShipping:
		return ShippingResponse()
	default:
		return PaymentResponse(method, body)
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Install hijacks all requests on the page, answering payment provider
// calls with mock JSON and aborting analytics beacons. The returned
// stop function tears the router down.
func Install(page *rod.Page, logger *log.Logger) (func(), error) {
	router := page.HijackRequests()

	err := router.Add("*", "", func(ctx *rod.Hijack) {
		url := ctx.Request.URL().String()
		kind := Classify(url)

		switch kind {
		case KindNone:
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
		case KindAnalytics:
			if logger != nil {
				logger.Debug("blocked analytics request", "url", url)
			}
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		default:
			if logger != nil {
				logger.Debug("mocked payment request", "method", ctx.Request.Method(), "url", url)
			}
			ctx.Response.SetHeader("Content-Type", "application/json")
			ctx.Response.SetBody(Respond(kind, ctx.Request.Method(), ctx.Request.Body()))
		}
	})
	if err != nil {
		return nil, err
	}

	go router.Run()
	return func() { router.Stop() }, nil
}
